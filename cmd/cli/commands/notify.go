package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stakeport/stakeport/internal/notify"
	"github.com/stakeport/stakeport/pkg/types"
)

// NewNotifyCmd creates the notify command group
func NewNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send administrator notifications",
	}
	cmd.AddCommand(newNotifyRegistrationCmd())
	return cmd
}

func newNotifyRegistrationCmd() *cobra.Command {
	var m notify.Member
	var preview bool

	cmd := &cobra.Command{
		Use:   "registration",
		Short: "Notify administrators of a new member registration",
		Long: `Render the registration email and send it once through the configured
mail provider. Missing optional fields are shown as "Not provided".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m.RegisteredAt = time.Now()
			if preview {
				subject, body, err := notify.RenderRegistration(m)
				if err != nil {
					return err
				}
				fmt.Println(KeyValue("Subject", subject))
				fmt.Println(body)
				return nil
			}

			a, err := GetApp()
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.Notifier()
			if err != nil {
				return err
			}
			err = WithSpinner("Sending notification", func() error {
				return d.NotifyRegistration(cmd.Context(), m)
			})
			var derr *types.DeliveryError
			if errors.As(err, &derr) {
				Error("Notification not delivered")
				fmt.Println(KeyValue("Transport", derr.Transport))
				fmt.Println(KeyValue("Diagnostic", derr.Diagnostic))
				return err
			}
			if err != nil {
				return err
			}
			Success("Administrators notified")
			return nil
		},
	}

	cmd.Flags().StringVar(&m.Username, "username", "", "Member username (required)")
	cmd.Flags().StringVar(&m.Email, "email", "", "Member email (required)")
	cmd.Flags().StringVar(&m.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&m.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&m.Referrer, "referrer", "", "Referrer")
	cmd.Flags().StringVar(&m.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&m.IP, "ip", "", "Registration IP")
	cmd.Flags().StringVar(&m.Wallet, "wallet", "", "Wallet address")
	cmd.Flags().BoolVar(&preview, "preview", false, "Print the rendered email instead of sending it")
	return cmd
}
