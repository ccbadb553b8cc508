package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
)

var cancelType string

var cancelPendingCmd = &cobra.Command{
	Use:   "cancel-pending",
	Short: "Fail every PENDING request of one type and refund the callers",
	RunE: func(cmd *cobra.Command, args []string) error {
		op := models.OperationType(strings.ToLower(cancelType))
		if !op.Valid() {
			return fmt.Errorf("--type must be activation or topup")
		}

		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.services.Gateway.CancelAllPending(cmd.Context(), op)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Message)
		return nil
	},
}

func init() {
	cancelPendingCmd.Flags().StringVarP(&cancelType, "type", "t", "", "activation or topup")
	_ = cancelPendingCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(cancelPendingCmd)
}
