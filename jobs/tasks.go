package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockRebuild replays stock journals into balance rows.
	TaskStockRebuild = "stock:rebuild"
	// TaskLedgerIntegrity scans posted vouchers for broken invariants.
	TaskLedgerIntegrity = "ledger:integrity"
)

// CompanyPayload scopes a maintenance task. A zero CompanyID means every
// company with ledger data.
type CompanyPayload struct {
	CompanyID    int64     `json:"company_id,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockRebuildTask constructs a stock rebuild task.
func NewStockRebuildTask(companyID int64, at time.Time) (*asynq.Task, error) {
	return newCompanyTask(TaskStockRebuild, companyID, at)
}

// NewLedgerIntegrityTask constructs a ledger integrity task.
func NewLedgerIntegrityTask(companyID int64, at time.Time) (*asynq.Task, error) {
	return newCompanyTask(TaskLedgerIntegrity, companyID, at)
}

func newCompanyTask(taskType string, companyID int64, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(CompanyPayload{CompanyID: companyID, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

func decodeCompany(t *asynq.Task) (CompanyPayload, error) {
	var payload CompanyPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return CompanyPayload{}, err
	}
	return payload, nil
}

// MaintenanceHandlers registers the stock rebuild and ledger integrity jobs.
func MaintenanceHandlers(stock *StockRebuildJob, ledger *LedgerIntegrityJob) []TaskHandler {
	var handlers []TaskHandler
	if stock != nil {
		handlers = append(handlers, TaskHandler{Type: TaskStockRebuild, Handler: stock.Handle})
	}
	if ledger != nil {
		handlers = append(handlers, TaskHandler{Type: TaskLedgerIntegrity, Handler: ledger.Handle})
	}
	return handlers
}

// MaintenanceCron schedules both jobs for every company.
func MaintenanceCron(stockSpec, ledgerSpec string) ([]CronRegistration, error) {
	now := time.Now().UTC()
	stock, err := NewStockRebuildTask(0, now)
	if err != nil {
		return nil, err
	}
	ledger, err := NewLedgerIntegrityTask(0, now)
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: stockSpec, Task: stock},
		{Spec: ledgerSpec, Task: ledger},
	}, nil
}
