package main

import (
	"context"
	"log"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/repoquery/pkg/binding"
	"github.com/ekaya-inc/repoquery/pkg/config"
	"github.com/ekaya-inc/repoquery/pkg/database"
	"github.com/ekaya-inc/repoquery/pkg/engine/pgxengine"
	"github.com/ekaya-inc/repoquery/pkg/logging"
	"github.com/ekaya-inc/repoquery/pkg/metamodel"
	"github.com/ekaya-inc/repoquery/pkg/query"
	"github.com/ekaya-inc/repoquery/pkg/sqlparse"
)

// Role and User mirror the schema under migrations/. They demonstrate the
// mapping conventions; real applications declare their own entities.
type Role struct {
	ID   int64 `orm:"id"`
	Name string
}

type User struct {
	ID        int64 `orm:"id"`
	Name      string
	Age       int
	Active    bool
	Manager   *User  `orm:"manyToOne"`
	Roles     []Role `orm:"manyToMany"`
	CreatedAt time.Time
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := database.RunMigrations(&cfg.Database, "migrations", logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	mm := metamodel.New().MustRegister(User{})
	eng := pgxengine.NewWithOptions(db.Pool, mm, logger, pgxengine.Options{
		StreamFetchSize:    cfg.Query.StreamFetchSize,
		LogParameterValues: cfg.Query.LogParameterValues,
		SlowQueryThreshold: time.Duration(cfg.Query.SlowQueryMillis) * time.Millisecond,
	})
	factory := query.NewFactory(eng, binding.NewExprEvaluator(nil), logger)

	findActive, err := newFindActive(factory)
	if err != nil {
		logger.Fatal("Failed to bootstrap query", zap.Error(err))
	}
	countAdults, err := newCountAdults(factory)
	if err != nil {
		logger.Fatal("Failed to bootstrap query", zap.Error(err))
	}
	countAll, err := newCountAllUsers(factory)
	if err != nil {
		logger.Fatal("Failed to bootstrap query", zap.Error(err))
	}
	existsByID, err := newExistsUserByID(factory)
	if err != nil {
		logger.Fatal("Failed to bootstrap query", zap.Error(err))
	}

	users, err := findActive.Execute(ctx, true)
	if err != nil {
		logger.Fatal("Query failed", zap.Error(err))
	}
	logger.Info("Active users", zap.Int("count", len(users.([]any))))

	adults, err := countAdults.Execute(ctx, 18)
	if err != nil {
		logger.Fatal("Query failed", zap.Error(err))
	}
	logger.Info("Adult users", zap.Int64("count", adults.(int64)))

	total, err := countAll.Execute(ctx)
	if err != nil {
		logger.Fatal("Query failed", zap.Error(err))
	}
	logger.Info("All users", zap.Int64("count", total.(int64)))

	matches, err := existsByID.Execute(ctx, int64(1))
	if err != nil {
		logger.Fatal("Query failed", zap.Error(err))
	}
	logger.Info("User lookup", zap.Int64("id", 1), zap.Bool("exists", matches.(int64) > 0))
}

func newFindActive(factory *query.Factory) (query.RepositoryQuery, error) {
	params, err := binding.NewParameters(
		&binding.Parameter{Name: "active", Index: 0, Type: reflect.TypeOf(false)},
	)
	if err != nil {
		return nil, err
	}
	return factory.Create(&query.Method{
		Name:    "findByActiveOrderByNameAsc",
		Entity:  User{},
		Params:  params,
		Returns: query.ReturnsMany,
	})
}

func newCountAdults(factory *query.Factory) (query.RepositoryQuery, error) {
	params, err := binding.NewParameters(
		&binding.Parameter{Name: "age", Index: 0, Type: reflect.TypeOf(0)},
	)
	if err != nil {
		return nil, err
	}
	return factory.Create(&query.Method{
		Name:    "countByAgeGreaterThanEqual",
		Entity:  User{},
		Params:  params,
		Returns: query.ReturnsCount,
	})
}

func newCountAllUsers(factory *query.Factory) (query.RepositoryQuery, error) {
	params, err := binding.NewParameters()
	if err != nil {
		return nil, err
	}
	return factory.Create(&query.Method{
		Name:    "countAllUsers",
		Entity:  User{},
		Params:  params,
		Query:   sqlparse.CountAllQuery("User"),
		Returns: query.ReturnsCount,
	})
}

func newExistsUserByID(factory *query.Factory) (query.RepositoryQuery, error) {
	params, err := binding.NewParameters(
		&binding.Parameter{Name: "id", Index: 0, Type: reflect.TypeOf(int64(0))},
	)
	if err != nil {
		return nil, err
	}
	return factory.Create(&query.Method{
		Name:    "existsUserById",
		Entity:  User{},
		Params:  params,
		Query:   sqlparse.ExistsQuery("User", "id"),
		Returns: query.ReturnsCount,
	})
}
