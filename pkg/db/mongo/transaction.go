package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// DefaultMaxCommitTime bounds a single booking transaction. The driver keeps
// retrying transient conflicts until the context ends, so this is also the
// longest a contended write can wait.
const DefaultMaxCommitTime = 5 * time.Second

type TransactionFunc func(ctx mongo.SessionContext) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client        *mongo.Client
	maxCommitTime time.Duration
}

func NewTransactionManager(client *mongo.Client) TransactionManager {
	return &mongoTransactionManager{
		client:        client,
		maxCommitTime: DefaultMaxCommitTime,
	}
}

// TransactionOptions are snapshot reads with majority writes, so an overlap
// check inside the transaction sees every committed booking and a write
// conflict on the room guard aborts one of two racing transactions.
func TransactionOptions(maxCommitTime time.Duration) *options.TransactionOptions {
	return options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority()).
		SetMaxCommitTime(&maxCommitTime)
}

func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	var fnErr error
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		fnErr = fn(sessCtx)
		return nil, fnErr
	}, TransactionOptions(m.maxCommitTime))

	if err != nil {
		// Errors raised by fn itself are domain outcomes; pass them through
		// unwrapped.
		if fnErr != nil && errors.Is(err, fnErr) {
			return fnErr
		}
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}
