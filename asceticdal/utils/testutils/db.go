package testutils

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	pgxsession "github.com/krew-solutions/ascetic-dal-go/asceticdal/session/pgx"
)

// NewPgxSessionPool connects to the database described by the DB_*
// environment variables. The pool is pinged so that integration tests can
// skip themselves when no database is reachable.
func NewPgxSessionPool() (*pgxsession.SessionPool, error) {
	pool, err := pgxpool.New(context.Background(), PostgresDSN())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pgxsession.NewSessionPool(pool), nil
}

func PostgresDSN() string {
	var db_username string = getEnv("DB_USERNAME", "devel")
	var db_password string = getEnv("DB_PASSWORD", "devel")
	var db_host string = getEnv("DB_HOST", "localhost")
	var db_port string = getEnv("DB_PORT", "5432")
	var db_basename string = getEnv("DB_DATABASE", "devel_dal")

	return "postgres://" + db_username + ":" + db_password + "@" + db_host + ":" + db_port + "/" + db_basename
}

// MongoURI returns the MongoDB address of the integration environment.
func MongoURI() string {
	return getEnv("MONGODB_URI", "mongodb://localhost:27017")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}
