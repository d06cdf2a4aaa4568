package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"TC/configs"
	"TC/session"
	"TC/utils"
)

// MongoStore keeps sessions in two collections keyed by xid and branchId.
// Document updates are atomic per record, like the sql path.
type MongoStore struct {
	ctx           context.Context
	client        *mongo.Client
	global        *mongo.Collection
	branch        *mongo.Collection
	logQueryLimit int
}

type globalDoc struct {
	XID                     string `bson:"_id"`
	TransactionID           int64  `bson:"transactionId"`
	Status                  int    `bson:"status"`
	ApplicationID           string `bson:"applicationId"`
	TransactionServiceGroup string `bson:"transactionServiceGroup"`
	TransactionName         string `bson:"transactionName"`
	Timeout                 int64  `bson:"timeout"`
	BeginTime               int64  `bson:"beginTime"`
	ApplicationData         string `bson:"applicationData,omitempty"`
	GmtCreate               int64  `bson:"gmtCreate"`
	GmtModified             int64  `bson:"gmtModified"`
}

type branchDoc struct {
	BranchID        int64  `bson:"_id"`
	XID             string `bson:"xid"`
	TransactionID   int64  `bson:"transactionId"`
	ResourceGroupID string `bson:"resourceGroupId"`
	ResourceID      string `bson:"resourceId"`
	ClientID        string `bson:"clientId"`
	BranchType      int    `bson:"branchType"`
	Status          int    `bson:"status"`
	ApplicationData string `bson:"applicationData,omitempty"`
	GmtCreate       int64  `bson:"gmtCreate"`
	GmtModified     int64  `bson:"gmtModified"`
}

func toGlobalDoc(g *session.GlobalSession) *globalDoc {
	return &globalDoc{
		XID:                     g.XID,
		TransactionID:           g.TransactionID,
		Status:                  int(g.Status),
		ApplicationID:           g.ApplicationID,
		TransactionServiceGroup: g.TransactionServiceGroup,
		TransactionName:         g.TransactionName,
		Timeout:                 g.Timeout,
		BeginTime:               g.BeginTime,
		ApplicationData:         g.ApplicationData,
		GmtCreate:               g.GmtCreate,
		GmtModified:             g.GmtModified,
	}
}

func (d *globalDoc) toSession() *session.GlobalSession {
	return &session.GlobalSession{
		XID:                     d.XID,
		TransactionID:           d.TransactionID,
		Status:                  session.GlobalStatus(d.Status),
		ApplicationID:           d.ApplicationID,
		TransactionServiceGroup: d.TransactionServiceGroup,
		TransactionName:         d.TransactionName,
		Timeout:                 d.Timeout,
		BeginTime:               d.BeginTime,
		ApplicationData:         d.ApplicationData,
		GmtCreate:               d.GmtCreate,
		GmtModified:             d.GmtModified,
	}
}

func toBranchDoc(b *session.BranchSession) *branchDoc {
	return &branchDoc{
		BranchID:        b.BranchID,
		XID:             b.XID,
		TransactionID:   b.TransactionID,
		ResourceGroupID: b.ResourceGroupID,
		ResourceID:      b.ResourceID,
		ClientID:        b.ClientID,
		BranchType:      int(b.BranchType),
		Status:          int(b.Status),
		ApplicationData: b.ApplicationData,
		GmtCreate:       b.GmtCreate,
		GmtModified:     b.GmtModified,
	}
}

func (d *branchDoc) toSession() *session.BranchSession {
	return &session.BranchSession{
		BranchID:        d.BranchID,
		XID:             d.XID,
		TransactionID:   d.TransactionID,
		ResourceGroupID: d.ResourceGroupID,
		ResourceID:      d.ResourceID,
		ClientID:        d.ClientID,
		BranchType:      session.BranchType(d.BranchType),
		Status:          session.BranchStatus(d.Status),
		ApplicationData: d.ApplicationData,
		GmtCreate:       d.GmtCreate,
		GmtModified:     d.GmtModified,
	}
}

func NewMongoStore(link, database string) (*MongoStore, error) {
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(link))
	if err != nil {
		return nil, utils.WrapStoreErr("connect mongo", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, configs.DialTimeout)
	defer cancel()
	if err = client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, utils.WrapStoreErr("ping mongo", err)
	}
	db := client.Database(database)
	s := &MongoStore{
		ctx:           ctx,
		client:        client,
		global:        db.Collection("global_table"),
		branch:        db.Collection("branch_table"),
		logQueryLimit: configs.LogQueryLimit,
	}
	_, err = s.global.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "gmtModified", Value: 1}},
	})
	if err == nil {
		_, err = s.branch.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "xid", Value: 1}},
		})
	}
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, utils.WrapStoreErr("init mongo indexes", err)
	}
	configs.DPrintf("mongo store ready, database %v", database)
	return s, nil
}

func (s *MongoStore) WriteSession(op LogOperation, rec session.Storable) (bool, error) {
	switch op {
	case GlobalAdd, GlobalUpdate, GlobalRemove:
		g, ok := rec.(*session.GlobalSession)
		if !ok {
			return false, fmt.Errorf("%w: %v wants a global session record", utils.ErrInvalidArgument, op)
		}
		switch op {
		case GlobalAdd:
			return s.insertGlobal(g)
		case GlobalUpdate:
			return s.updateGlobal(g)
		default:
			return s.removeGlobal(g)
		}
	case BranchAdd, BranchUpdate, BranchRemove:
		b, ok := rec.(*session.BranchSession)
		if !ok {
			return false, fmt.Errorf("%w: %v wants a branch session record", utils.ErrInvalidArgument, op)
		}
		switch op {
		case BranchAdd:
			return s.insertBranch(b)
		case BranchUpdate:
			return s.updateBranch(b)
		default:
			return s.removeBranch(b)
		}
	default:
		return false, fmt.Errorf("%w: unknown log operation %d", utils.ErrInvalidArgument, uint8(op))
	}
}

func (s *MongoStore) insertGlobal(g *session.GlobalSession) (bool, error) {
	now := time.Now().UnixMilli()
	g.GmtCreate, g.GmtModified = now, now
	if _, err := s.global.InsertOne(s.ctx, toGlobalDoc(g)); err != nil {
		return false, utils.WrapStoreErr("global add", err)
	}
	return true, nil
}

func (s *MongoStore) updateGlobal(g *session.GlobalSession) (bool, error) {
	res, err := s.global.UpdateOne(s.ctx,
		bson.M{"_id": g.XID, "status": bson.M{"$ne": int(g.Status)}},
		bson.M{"$set": bson.M{"status": int(g.Status), "gmtModified": time.Now().UnixMilli()}})
	if err != nil {
		return false, utils.WrapStoreErr("global update", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	n, err := s.global.CountDocuments(s.ctx, bson.M{"_id": g.XID})
	if err != nil {
		return false, utils.WrapStoreErr("global update", err)
	}
	if n == 0 {
		return false, fmt.Errorf("%w: global session %v", utils.ErrNotFound, g.XID)
	}
	return true, nil
}

func (s *MongoStore) removeGlobal(g *session.GlobalSession) (bool, error) {
	if _, err := s.global.DeleteOne(s.ctx, bson.M{"_id": g.XID}); err != nil {
		return false, utils.WrapStoreErr("global remove", err)
	}
	return true, nil
}

func (s *MongoStore) insertBranch(b *session.BranchSession) (bool, error) {
	now := time.Now().UnixMilli()
	b.GmtCreate, b.GmtModified = now, now
	if _, err := s.branch.InsertOne(s.ctx, toBranchDoc(b)); err != nil {
		return false, utils.WrapStoreErr("branch add", err)
	}
	return true, nil
}

func (s *MongoStore) updateBranch(b *session.BranchSession) (bool, error) {
	set := bson.M{"status": int(b.Status), "gmtModified": time.Now().UnixMilli()}
	if b.ApplicationData != "" {
		set["applicationData"] = b.ApplicationData
	}
	res, err := s.branch.UpdateOne(s.ctx, bson.M{"_id": b.BranchID}, bson.M{"$set": set})
	if err != nil {
		return false, utils.WrapStoreErr("branch update", err)
	}
	if res.MatchedCount == 0 {
		return false, fmt.Errorf("%w: branch session %v", utils.ErrNotFound, b.BranchID)
	}
	return true, nil
}

func (s *MongoStore) removeBranch(b *session.BranchSession) (bool, error) {
	if _, err := s.branch.DeleteOne(s.ctx, bson.M{"_id": b.BranchID}); err != nil {
		return false, utils.WrapStoreErr("branch remove", err)
	}
	return true, nil
}

func (s *MongoStore) findGlobal(filter interface{}) (*session.GlobalSession, error) {
	doc := globalDoc{}
	err := s.global.FindOne(s.ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, utils.WrapStoreErr("read global", err)
	}
	return doc.toSession(), nil
}

func (s *MongoStore) ReadSession(xid string, withBranches bool) (*session.GlobalSession, error) {
	g, err := s.findGlobal(bson.M{"_id": xid})
	if err != nil || g == nil {
		return nil, err
	}
	if withBranches {
		if g.Branches, err = s.FindBranchSessionByXid(xid); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (s *MongoStore) ReadFullSession(xid string) (*session.GlobalSession, error) {
	return s.ReadSession(xid, true)
}

func (s *MongoStore) ReadSessionByTransactionID(transactionID int64, withBranches bool) (*session.GlobalSession, error) {
	g, err := s.findGlobal(bson.M{"transactionId": transactionID})
	if err != nil || g == nil {
		return nil, err
	}
	if withBranches {
		if g.Branches, err = s.FindBranchSessionByXid(g.XID); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (s *MongoStore) queryGlobals(filter interface{}, opts *options.FindOptions, withBranches bool) ([]*session.GlobalSession, error) {
	cur, err := s.global.Find(s.ctx, filter, opts)
	if err != nil {
		return nil, utils.WrapStoreErr("query globals", err)
	}
	defer cur.Close(s.ctx)
	res := make([]*session.GlobalSession, 0)
	for cur.Next(s.ctx) {
		doc := globalDoc{}
		if err = cur.Decode(&doc); err != nil {
			return nil, utils.WrapStoreErr("decode global", err)
		}
		g := doc.toSession()
		if withBranches {
			if g.Branches, err = s.FindBranchSessionByXid(g.XID); err != nil {
				return nil, err
			}
		}
		res = append(res, g)
	}
	if err = cur.Err(); err != nil {
		return nil, utils.WrapStoreErr("query globals", err)
	}
	return res, nil
}

func (s *MongoStore) ReadSessionByStatuses(statuses []session.GlobalStatus, withBranches bool) ([]*session.GlobalSession, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	codes := make([]int, len(statuses))
	for i, st := range statuses {
		codes[i] = int(st)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "gmtModified", Value: 1}}).
		SetLimit(int64(s.logQueryLimit))
	return s.queryGlobals(bson.M{"status": bson.M{"$in": codes}}, opts, withBranches)
}

func (s *MongoStore) ReadSessionWithCondition(cond *SessionCondition) ([]*session.GlobalSession, error) {
	withBranches := !cond.LazyLoadBranch
	if cond.XID != "" {
		g, err := s.ReadSession(cond.XID, withBranches)
		if err != nil || g == nil {
			return nil, err
		}
		return []*session.GlobalSession{g}, nil
	}
	if cond.TransactionID != 0 {
		g, err := s.ReadSessionByTransactionID(cond.TransactionID, withBranches)
		if err != nil || g == nil {
			return nil, err
		}
		return []*session.GlobalSession{g}, nil
	}
	if len(cond.Statuses) > 0 {
		return s.ReadSessionByStatuses(cond.Statuses, withBranches)
	}
	if cond.Status != nil {
		return s.ReadSessionByStatuses([]session.GlobalStatus{*cond.Status}, withBranches)
	}
	return nil, nil
}

func (s *MongoStore) ReadSessionStatusByPage(param *SessionQueryParam) ([]*session.GlobalSession, error) {
	if param == nil || param.Status == nil || param.PageSize <= 0 {
		return nil, nil
	}
	pageNum := configs.Max(1, param.PageNum)
	opts := options.Find().
		SetSort(bson.D{{Key: "gmtModified", Value: 1}}).
		SetSkip(int64((pageNum - 1) * param.PageSize)).
		SetLimit(int64(param.PageSize))
	return s.queryGlobals(bson.M{"status": int(*param.Status)}, opts, param.WithBranch)
}

func (s *MongoStore) FindGlobalSessionByPage(pageNum, pageSize int, withBranch bool) ([]*session.GlobalSession, error) {
	if pageSize <= 0 {
		return nil, nil
	}
	pageNum = configs.Max(1, pageNum)
	opts := options.Find().
		SetSort(bson.D{{Key: "gmtModified", Value: 1}}).
		SetSkip(int64((pageNum - 1) * pageSize)).
		SetLimit(int64(pageSize))
	return s.queryGlobals(bson.M{}, opts, withBranch)
}

func (s *MongoStore) FindBranchSessionByXid(xid string) ([]*session.BranchSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.branch.Find(s.ctx, bson.M{"xid": xid}, opts)
	if err != nil {
		return nil, utils.WrapStoreErr("query branches", err)
	}
	defer cur.Close(s.ctx)
	res := make([]*session.BranchSession, 0)
	for cur.Next(s.ctx) {
		doc := branchDoc{}
		if err = cur.Decode(&doc); err != nil {
			return nil, utils.WrapStoreErr("decode branch", err)
		}
		res = append(res, doc.toSession())
	}
	if err = cur.Err(); err != nil {
		return nil, utils.WrapStoreErr("query branches", err)
	}
	return res, nil
}

func (s *MongoStore) CountByGlobalSessions(statuses []session.GlobalStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	codes := make([]int, len(statuses))
	for i, st := range statuses {
		codes[i] = int(st)
	}
	total, err := s.global.CountDocuments(s.ctx, bson.M{"status": bson.M{"$in": codes}})
	if err != nil {
		return 0, utils.WrapStoreErr("count sessions", err)
	}
	return total, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(s.ctx)
}
