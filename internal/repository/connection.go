package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const mongoAppName = "artisan-orders"

// ConnectMongoDB opens a client for the order store. Placement transactions
// read and write with majority concern and must run on the primary, so the
// connection is only handed out once the primary answers.
func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	if database == "" {
		return nil, errors.New("connect mongodb: database name is empty")
	}

	ctx, span := tracer.Start(ctx, "ConnectMongoDB",
		trace.WithAttributes(
			attribute.String("db.system", "mongodb"),
			attribute.String("db.name", database),
		))
	defer span.End()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName(mongoAppName).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetReadPreference(readpref.Primary()).
		SetReadConcern(readconcern.Majority()).
		SetWriteConcern(writeconcern.Majority())

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, connectFailed(span, fmt.Errorf("connect mongodb: %w", err))
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		// the pool is already running; release it before giving up
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, connectFailed(span, fmt.Errorf("ping mongodb primary: %w", err))
	}

	return client.Database(database), nil
}

func connectFailed(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
