// Package tool implements the tool catalog and the dispatcher that routes a
// named invocation to its handler.
//
// Every outcome of a known tool (success, not found, failure, even a
// panic) comes back as a *Response. Only an unknown tool name is returned
// as an error, so the transport can report it as a protocol error.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/koustreak/mallgate/internal/database"
	"github.com/koustreak/mallgate/internal/errs"
	"github.com/koustreak/mallgate/internal/logger"
	"github.com/koustreak/mallgate/internal/lookup"
	"github.com/koustreak/mallgate/internal/metrics"
	"github.com/koustreak/mallgate/internal/schema"
)

// Lookups is the set of domain lookups the dispatcher serves.
type Lookups interface {
	GetOrder(ctx context.Context, orderID string) (*lookup.Lookup, error)
	GetOrderDetail(ctx context.Context, orderID string) (*lookup.Lookup, error)
	GetMember(ctx context.Context, memberID string) (*lookup.Lookup, error)
}

// Dispatcher routes tool calls. It is safe for concurrent use.
type Dispatcher struct {
	db      database.Executor
	tables  schema.Reader
	lookups Lookups
	log     *logger.Logger
}

// NewDispatcher wires the dispatcher to its backends.
func NewDispatcher(db database.Executor, tables schema.Reader, lookups Lookups, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		db:      db,
		tables:  tables,
		lookups: lookups,
		log:     log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch runs the tool called name with the raw JSON arguments. It
// returns an UnknownTool error if name is not in the catalog; every other
// outcome is a Response.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, raw json.RawMessage) (*Response, error) {
	start := time.Now()

	inv, err := Decode(name, raw)
	if errs.IsUnknownTool(err) {
		d.log.WarnWith("unknown tool requested", err, logger.Fields{"tool": name})
		return nil, err
	}

	var resp *Response
	if err != nil {
		resp = ErrorResponse(errorPrefix[name] + errs.Message(err))
	} else {
		resp = d.invoke(ctx, inv)
	}

	d.observe(name, resp, time.Since(start))
	return resp, nil
}

// invoke runs the handler inside a failure boundary.
func (d *Dispatcher) invoke(ctx context.Context, inv Invocation) (resp *Response) {
	name := inv.Tool()
	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorWith("tool handler panicked", fmt.Errorf("%v", r), logger.Fields{
				"tool":  name,
				"stack": string(debug.Stack()),
			})
			resp = ErrorResponse(fmt.Sprintf("%sinternal error: %v", errorPrefix[name], r))
		}
	}()

	resp, err := d.handle(ctx, inv)
	if err != nil {
		return ErrorResponse(errorPrefix[name] + errs.Message(err))
	}
	return resp
}

func (d *Dispatcher) handle(ctx context.Context, inv Invocation) (*Response, error) {
	switch args := inv.(type) {
	case ExecuteQueryArgs:
		return d.executeQuery(ctx, args)
	case GetTableStructureArgs:
		return d.getTableStructure(ctx, args)
	case ListTablesArgs:
		return d.listTables(ctx)
	case GetOrderArgs:
		return d.getLookup(ctx, args.OrderID, "order", false, d.lookups.GetOrder)
	case GetOrderDetailArgs:
		return d.getLookup(ctx, args.OrderID, "order", true, d.lookups.GetOrderDetail)
	case GetMemberArgs:
		return d.getLookup(ctx, args.MemberID, "member", false, d.lookups.GetMember)
	default:
		return nil, errs.Newf(errs.ErrKindUnknownTool, "unknown tool: %s", inv.Tool())
	}
}

func (d *Dispatcher) executeQuery(ctx context.Context, args ExecuteQueryArgs) (*Response, error) {
	res, err := d.db.Execute(ctx, args.Query)
	if err != nil {
		return nil, err
	}
	text, err := renderQueryResult(res)
	if err != nil {
		return nil, err
	}
	return TextResponse(text), nil
}

func (d *Dispatcher) getTableStructure(ctx context.Context, args GetTableStructureArgs) (*Response, error) {
	ts, err := d.tables.DescribeTable(ctx, args.TableName)
	if errs.IsNotFound(err) {
		return NotFoundResponse("table not found: " + args.TableName), nil
	}
	if err != nil {
		return nil, err
	}
	return TextResponse(schema.FormatStructure(ts)), nil
}

func (d *Dispatcher) listTables(ctx context.Context) (*Response, error) {
	tables, err := d.tables.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	return TextResponse(renderTableList(d.db.Schema(), tables)), nil
}

func (d *Dispatcher) getLookup(ctx context.Context, id, entity string, all bool,
	fn func(context.Context, string) (*lookup.Lookup, error)) (*Response, error) {
	l, err := fn(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.Found {
		return NotFoundResponse(fmt.Sprintf("%s not found: %s", entity, id)), nil
	}

	title := fmt.Sprintf("%s: %s", entity, id)
	if all {
		title = fmt.Sprintf("order detail: %s", id)
	}
	text, err := renderLookup(title, l, all)
	if err != nil {
		return nil, err
	}
	return TextResponse(text), nil
}

func (d *Dispatcher) observe(name string, resp *Response, elapsed time.Duration) {
	status := metrics.StatusSuccess
	switch {
	case resp.IsError:
		status = metrics.StatusError
	case resp.NotFound():
		status = metrics.StatusNotFound
	}
	metrics.ToolCallsTotal.WithLabelValues(name, status).Inc()
	metrics.ToolCallDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	fields := logger.Fields{
		"tool":        name,
		"status":      status,
		"duration_ms": elapsed.Milliseconds(),
	}
	if resp.IsError {
		d.log.WarnWith("tool call failed", fmt.Errorf("%s", resp.Text()), fields)
		return
	}
	d.log.DebugWith("tool call completed", fields)
}
