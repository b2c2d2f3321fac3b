package graph

import (
	"github.com/mmdatafocus/shopledger_backend/workflow"
	"github.com/sirupsen/logrus"
)

// Resolver is the dependency root of the GraphQL layer. Every field delegates to the
// workflow service, which owns validation and the ledger invariants.
type Resolver struct {
	Svc    *workflow.Service
	Logger *logrus.Logger
}

type queryResolver struct{ *Resolver }

type mutationResolver struct{ *Resolver }
