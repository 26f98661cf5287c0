package engine

import (
	"github.com/web3guy0/tradecore/internal/model"
)

// ExecutionClient is the engine's outbound surface to one venue connection.
// Each call returns synchronously with routing success or failure; the
// asynchronous outcome arrives later as order events through the engine.
type ExecutionClient interface {
	ID() model.ClientID
	Venue() model.Venue
	AccountID() model.AccountID

	Start() error
	Stop() error

	SubmitOrder(cmd *model.SubmitOrder) error
	SubmitOrderList(cmd *model.SubmitOrderList) error
	ModifyOrder(cmd *model.ModifyOrder) error
	CancelOrder(cmd *model.CancelOrder) error
	CancelAllOrders(cmd *model.CancelAllOrders) error
	BatchCancelOrders(cmd *model.BatchCancelOrders) error
	QueryOrder(cmd *model.QueryOrder) error

	// Report generation for reconciliation.
	GenerateOrderStatusReports() ([]model.OrderStatusReport, error)
	GenerateFillReports() ([]model.FillReport, error)
	GeneratePositionStatusReports() ([]model.PositionStatusReport, error)
	// GenerateMassStatus bundles all of the above in one snapshot.
	GenerateMassStatus() (*model.ExecutionMassStatus, error)
}
