package postgres

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/mallgate/internal/errs"
)

// PostgreSQL SQLSTATE codes and classes the gateway treats specially.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection     = "08"
	pgClassAuthorization  = "28"
	pgErrInvalidSchema    = "3F000"
	pgErrInsufficientPriv = "42501"
	pgErrQueryCanceled    = "57014"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
// An error that already is an *errs.Error is returned unchanged.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryFailed
		switch {
		case strings.HasPrefix(pgErr.Code, pgClassConnection), strings.HasPrefix(pgErr.Code, pgClassAuthorization):
			kind = errs.ErrKindConnectionFailed
		case pgErr.Code == pgErrInvalidSchema:
			kind = errs.ErrKindConfiguration
		case pgErr.Code == pgErrInsufficientPriv:
			kind = errs.ErrKindPermissionDenied
		case pgErr.Code == pgErrQueryCanceled:
			kind = errs.ErrKindTimeout
		}
		return errs.Wrap(kind, msg, err)
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || errors.Is(err, net.ErrClosed) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	// Everything else (encode/decode failures, closed pool, protocol errors)
	// happened while running the statement.
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// isPermanent reports whether retrying a failed bootstrap ping is pointless.
func isPermanent(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgClassAuthorization) || pgErr.Code == "3D000" // invalid_catalog_name
	}
	return false
}
