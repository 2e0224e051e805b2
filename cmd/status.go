package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mentorbook/models"
	"mentorbook/services/booking"
	"mentorbook/utils"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	var (
		apiURL   string
		token    string
		wait     bool
		interval time.Duration
		attempts int
	)
	cmd := &cobra.Command{
		Use:   "status <reservation-id>",
		Short: "Show a reservation's status, optionally waiting for confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return errors.New("--token is required (see the token command)")
			}
			if wait && (interval <= 0 || attempts <= 0) {
				return errors.New("--interval and --attempts must be positive")
			}
			client := &statusClient{
				baseURL: strings.TrimRight(apiURL, "/"),
				token:   token,
				http:    &http.Client{Timeout: 10 * time.Second},
			}
			fetch := func(ctx context.Context) (*models.ReservationView, error) {
				return client.fetch(ctx, args[0])
			}

			ctx := cmd.Context()
			var (
				view *models.ReservationView
				err  error
			)
			if wait {
				view, err = booking.AwaitConfirmation(ctx, fetch, booking.PollPolicy{Interval: interval, MaxAttempts: attempts})
			} else {
				view, err = fetch(ctx)
			}
			if view != nil {
				printView(cmd, view)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "booking API base URL")
	cmd.Flags().StringVar(&token, "token", "", "mentee bearer token")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the reservation is confirmed or closed")
	cmd.Flags().DurationVar(&interval, "interval", booking.DefaultPollPolicy().Interval, "poll interval")
	cmd.Flags().IntVar(&attempts, "attempts", booking.DefaultPollPolicy().MaxAttempts, "maximum polls")
	return cmd
}

type statusClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *statusClient) fetch(ctx context.Context, reservationID string) (*models.ReservationView, error) {
	endpoint := fmt.Sprintf("%s/api/bookings/%s/status", c.baseURL, url.PathEscape(reservationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr utils.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Code == "" {
			return nil, fmt.Errorf("status request failed: %s", resp.Status)
		}
		return nil, fmt.Errorf("%s: %s", apiErr.Code, apiErr.Error)
	}
	var view models.ReservationView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &view, nil
}

func printView(cmd *cobra.Command, v *models.ReservationView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Reservation: %s\n", v.ReservationID)
	fmt.Fprintf(out, "  Status:    %s\n", v.Status)
	if v.FailureCode != "" {
		fmt.Fprintf(out, "  Failure:   %s\n", v.FailureCode)
	}
	if v.CheckoutURL != "" && v.Status == models.ReservationHeld {
		fmt.Fprintf(out, "  Checkout:  %s\n", v.CheckoutURL)
	}
	if v.ExpiresAt != nil {
		fmt.Fprintf(out, "  Expires:   %s\n", v.ExpiresAt.Format(time.RFC3339))
	}
	if s := v.Session; s != nil {
		fmt.Fprintf(out, "  Session:   %s with %s (%s)\n", s.SessionDate.Format(time.RFC3339), s.MentorName, s.ServiceTitle)
	}
}
