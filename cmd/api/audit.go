package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"supply-daddy-api-server/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit <shipment-id>",
	Short: "Verify a shipment's ledger history and print the report",
	Long: `Reads every ledger entry of the shipment, recomputes the hash chain and
compares it with the anchors stored on the shipment. Exits non-zero when the
history is not valid.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a := &app{cfg: cfg, log: log}
	defer a.close(ctx)
	if err := a.openStorage(ctx); err != nil {
		return err
	}

	report, err := audit.NewAuditor(a.store.Shipments, a.ledger).Verify(ctx, args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if !report.Valid {
		return fmt.Errorf("shipment %s failed verification with %d findings", report.ShipmentID, len(report.Findings))
	}
	return nil
}
