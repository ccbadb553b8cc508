package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grigta/simgate/pkg/client"
)

var submitOpts struct {
	kind     string
	operator string
	phone    string
	code     string
	serial   string
	amount   float64
	offer    string
	noWait   bool
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a request to a running gateway and wait for its outcome",
	Long: `Submit reads SIMGATE_URL and SIMGATE_TOKEN from the environment, posts an activation
or top-up and polls the transaction until the executor answers or SIMGATE_POLL_TIMEOUT elapses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		clientCfg, err := client.LoadConfig()
		if err != nil {
			return err
		}
		api := client.NewClient(clientCfg, log)
		ctx := cmd.Context()

		var tx *client.Transaction
		switch strings.ToLower(submitOpts.kind) {
		case "activation":
			tx, err = api.SubmitActivation(ctx, client.ActivationRequest{
				Operator:    submitOpts.operator,
				PhoneNumber: submitOpts.phone,
				Code:        submitOpts.code,
				Serial:      submitOpts.serial,
			})
		case "topup":
			tx, err = api.SubmitTopup(ctx, client.TopupRequest{
				Operator:    submitOpts.operator,
				PhoneNumber: submitOpts.phone,
				Amount:      submitOpts.amount,
				Offer:       submitOpts.offer,
			})
		default:
			return fmt.Errorf("--type must be activation or topup")
		}
		if err != nil {
			return err
		}

		out := json.NewEncoder(cmd.OutOrStdout())
		out.SetIndent("", "  ")
		if submitOpts.noWait {
			return out.Encode(tx)
		}

		log.WithField("transaction_id", tx.ID).Info("Request submitted, waiting for the executor")
		result, err := client.NewPoller(api, clientCfg.PollInterval, clientCfg.PollTimeout, log).Await(ctx, tx.ID)
		if errors.Is(err, client.ErrTimeout) {
			fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return nil
		}
		if err != nil {
			return err
		}
		return out.Encode(result)
	},
}

func init() {
	f := submitCmd.Flags()
	f.StringVarP(&submitOpts.kind, "type", "t", "activation", "activation or topup")
	f.StringVar(&submitOpts.operator, "operator", "", "operator name")
	f.StringVar(&submitOpts.phone, "phone", "", "subscriber phone number")
	f.StringVar(&submitOpts.code, "code", "", "4 digit activation code")
	f.StringVar(&submitOpts.serial, "serial", "", "SIM serial")
	f.Float64Var(&submitOpts.amount, "amount", 0, "top-up amount")
	f.StringVar(&submitOpts.offer, "offer", "", "top-up offer")
	f.BoolVar(&submitOpts.noWait, "no-wait", false, "print the created transaction and exit")
	_ = submitCmd.MarkFlagRequired("operator")
	_ = submitCmd.MarkFlagRequired("phone")
	rootCmd.AddCommand(submitCmd)
}
