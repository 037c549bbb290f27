// Package lookup implements the fixed-projection business lookups: an
// order, an order with its fulfillment lines, and a member.
//
// Each lookup is a single parameterized SELECT built with the database
// query builder and run on the gateway. Zero rows is not an error: the
// returned Lookup has Found == false.
package lookup

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/mallgate/internal/database"
	"github.com/koustreak/mallgate/internal/errs"
)

// Table names in the shop schema.
const (
	OrdersTable      = "orders"
	OrderManageTable = "order_manage"
	MemberTable      = "member"
)

var orderColumns = []string{
	"order_id", "member_id", "order_date", "payed_amount", "is_payed", "is_shipped",
	"paymethod", "bank_code", "c_r_name", "c_r_addr1",
	"r_zipcode", "c_r_phone1", "ship_fee",
	"mileage_used", "coupon_price", "deposit_used",
}

var orderDetailColumns = []string{
	"o.order_id", "o.member_id", "o.order_date", "o.payed_amount",
	"o.is_payed", "o.is_shipped", "o.paymethod", "o.c_r_name", "o.c_r_addr1", "o.ship_fee",
	"om.om_no", "om.product_no", "om.quantity", "om.cur_state", "om.order_status",
	"om.manage_id", "om.place_date", "om.shipbegin_date", "om.shipend_date", "om.cancel_date",
}

var memberColumns = []string{
	"member_id", "group_no", "type", "priv",
	"c_name", "nick_name", "c_email", "c_phone", "c_mobile",
	"c_add1", "c_add2", "sex",
	"regist_date", "last_login_date",
	"buy_num", "total_mileage", "avail_mileage",
}

// Lookup is the outcome of one identifier lookup.
type Lookup struct {
	ID      string
	Found   bool
	Columns []string
	Rows    []map[string]any
}

// Service runs the lookups on db.
type Service struct {
	db database.Executor
}

// New creates a lookup service over db.
func New(db database.Executor) *Service {
	return &Service{db: db}
}

// GetOrder returns the order with orderID.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*Lookup, error) {
	q := database.Select(OrdersTable).
		Columns(orderColumns...).
		WhereEq("order_id", orderID).
		Limit(1)
	return s.run(ctx, "order", orderID, q)
}

// GetOrderDetail returns the order with orderID left-joined to its
// fulfillment lines: one row per order_manage record, or the bare order row
// when there is none.
func (s *Service) GetOrderDetail(ctx context.Context, orderID string) (*Lookup, error) {
	q := database.Select(OrdersTable).
		As("o").
		Columns(orderDetailColumns...).
		LeftJoin(OrderManageTable, "om", "o.order_id", "om.order_id").
		WhereEq("o.order_id", orderID).
		OrderBy("om.om_no", database.Asc)
	return s.run(ctx, "order detail", orderID, q)
}

// GetMember returns the member with memberID.
func (s *Service) GetMember(ctx context.Context, memberID string) (*Lookup, error) {
	q := database.Select(MemberTable).
		Columns(memberColumns...).
		WhereEq("member_id", memberID).
		Limit(1)
	return s.run(ctx, "member", memberID, q)
}

func (s *Service) run(ctx context.Context, what, id string, q *database.SelectBuilder) (*Lookup, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "%s id is required", what)
	}

	sql, args, err := q.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", what, err)
	}

	res, err := s.db.Execute(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s lookup: %w", what, err)
	}

	return &Lookup{
		ID:      id,
		Found:   len(res.Rows) > 0,
		Columns: res.Columns,
		Rows:    res.Rows,
	}, nil
}
