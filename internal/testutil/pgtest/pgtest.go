// Package pgtest starts a throwaway PostgreSQL container seeded with the
// shop tables for integration tests.
package pgtest

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/koustreak/mallgate/internal/database"
)

const (
	Image    = "postgres:16-alpine"
	Database = "mall"
	User     = "malluser"
	Password = "mallpass"
	Schema   = "ec_test"

	// OrderWithLines has two order_manage rows.
	OrderWithLines = "20250804-0000020"
	// OrderWithoutLines has none.
	OrderWithoutLines = "20250804-0000021"
	// Member is the member who placed both orders.
	Member = "hong01"
)

const seedSQL = `
CREATE SCHEMA ec_test;

CREATE TABLE ec_test.member (
	member_id       varchar(50) PRIMARY KEY,
	group_no        integer,
	type            varchar(10),
	priv            varchar(10),
	c_name          varchar(50) NOT NULL,
	nick_name       varchar(50),
	c_email         varchar(100),
	c_phone         varchar(20),
	c_mobile        varchar(20),
	c_add1          varchar(200),
	c_add2          varchar(200),
	sex             char(1),
	regist_date     timestamp NOT NULL DEFAULT now(),
	last_login_date timestamp,
	buy_num         integer NOT NULL DEFAULT 0,
	total_mileage   integer NOT NULL DEFAULT 0,
	avail_mileage   integer NOT NULL DEFAULT 0
);

CREATE TABLE ec_test.orders (
	order_id     varchar(20) PRIMARY KEY,
	member_id    varchar(50) REFERENCES ec_test.member (member_id),
	order_date   timestamp NOT NULL,
	payed_amount integer NOT NULL,
	is_payed     char(1) NOT NULL DEFAULT 'N',
	is_shipped   char(1) NOT NULL DEFAULT 'N',
	paymethod    varchar(10),
	bank_code    varchar(10),
	c_r_name     varchar(50),
	c_r_addr1    varchar(200),
	r_zipcode    varchar(10),
	c_r_phone1   varchar(20),
	ship_fee     integer NOT NULL DEFAULT 0,
	mileage_used integer NOT NULL DEFAULT 0,
	coupon_price integer NOT NULL DEFAULT 0,
	deposit_used integer NOT NULL DEFAULT 0
);
CREATE INDEX idx_orders_member ON ec_test.orders (member_id);

CREATE TABLE ec_test.order_manage (
	om_no          serial PRIMARY KEY,
	order_id       varchar(20) NOT NULL REFERENCES ec_test.orders (order_id),
	product_no     integer NOT NULL,
	quantity       integer NOT NULL,
	cur_state      varchar(10),
	order_status   varchar(10),
	manage_id      varchar(50),
	place_date     timestamp,
	shipbegin_date timestamp,
	shipend_date   timestamp,
	cancel_date    timestamp
);

INSERT INTO ec_test.member (member_id, group_no, type, priv, c_name, nick_name, c_email, sex, buy_num, total_mileage, avail_mileage)
VALUES ('hong01', 1, 'P', 'U', 'Hong Gildong', 'hong', 'hong@example.com', 'M', 2, 1500, 1200);

INSERT INTO ec_test.orders (order_id, member_id, order_date, payed_amount, is_payed, is_shipped, paymethod, c_r_name, c_r_addr1, r_zipcode, ship_fee)
VALUES
	('20250804-0000020', 'hong01', '2025-08-04 10:15:00', 39000, 'Y', 'N', 'card', 'Hong Gildong', 'Seoul', '04524', 3000),
	('20250804-0000021', 'hong01', '2025-08-04 11:00:00', 12000, 'N', 'N', 'bank', 'Hong Gildong', 'Seoul', '04524', 0);

INSERT INTO ec_test.order_manage (order_id, product_no, quantity, cur_state, order_status, manage_id, place_date)
VALUES
	('20250804-0000020', 1001, 1, 'READY', 'PAID', 'admin', '2025-08-04 10:20:00'),
	('20250804-0000020', 1002, 2, 'READY', 'PAID', 'admin', '2025-08-04 10:20:00');

ANALYZE ec_test.orders;
`

// Start runs a seeded container for the duration of t and returns a gateway
// configuration pointing at it. It skips the test under -short or when no
// container runtime is available.
func Start(t *testing.T) database.Config {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx, Image,
		postgres.WithDatabase(Database),
		postgres.WithUsername(User),
		postgres.WithPassword(Password),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to cleanup postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)

	cfg := database.Config{
		Host:           host,
		Port:           port,
		Database:       Database,
		User:           User,
		Password:       Password,
		SSLMode:        "disable",
		Schema:         Schema,
		MaxConns:       4,
		ConnectTimeout: 5 * time.Second,
	}.WithDefaults()

	conn, err := pgx.Connect(ctx, cfg.DSN())
	require.NoError(t, err)
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, seedSQL)
	require.NoError(t, err)

	return cfg
}
