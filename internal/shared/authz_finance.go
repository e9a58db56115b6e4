package shared

// Finance capabilities. Payment status targets each carry their own capability.
const (
	CapFinancesView   = "view:finances"
	CapFinancesManage = "manage:finances"

	CapPaymentsConfirm = "confirm:payments"
	CapPaymentsFlag    = "flag:payments"
	CapPaymentsCancel  = "cancel:payments"
)

// FinanceScopes lists all finance capabilities.
func FinanceScopes() []string {
	return []string{
		CapFinancesView,
		CapFinancesManage,
		CapPaymentsConfirm,
		CapPaymentsFlag,
		CapPaymentsCancel,
	}
}
