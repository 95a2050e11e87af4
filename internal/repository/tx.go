package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

type mongoTxRunner struct {
	client *mongo.Client
}

func NewMongoTxRunner(client *mongo.Client) TxRunner {
	return &mongoTxRunner{client: client}
}

// WithTransaction runs fn inside a Mongo session transaction. The session
// context is passed down as a plain context.Context; collection operations
// made with it join the transaction.
func (t *mongoTxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}
