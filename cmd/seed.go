package cmd

import (
	"context"
	"fmt"
	"time"

	"mentorbook/database"
	"mentorbook/models"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// seedID derives stable ids so re-seeding updates documents in place.
func seedID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("mentorbook-seed/"+name)).String()
}

func seedCmd() *cobra.Command {
	var (
		mentors int
		days    int
		reset   bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate mentors, services and availability for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client, db, err := database.Connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Disconnect(context.Background()) //nolint:errcheck

			if reset {
				for _, name := range []string{"mentees", "mentors", "services", "availability"} {
					if _, err := db.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
						return fmt.Errorf("clear %s: %w", name, err)
					}
				}
			}

			mentee := models.Mentee{ID: seedID("mentee-1"), Name: "Sample Mentee", Email: "mentee_1@example.com"}
			if err := upsertByID(ctx, db.Collection("mentees"), mentee.ID, mentee); err != nil {
				return err
			}

			today := time.Now().UTC().Truncate(24 * time.Hour)
			for i := 1; i <= mentors; i++ {
				mentor := models.Mentor{
					ID:     seedID(fmt.Sprintf("mentor-%d", i)),
					Name:   fmt.Sprintf("Mentor %d", i),
					Active: true,
				}
				if err := upsertByID(ctx, db.Collection("mentors"), mentor.ID, mentor); err != nil {
					return err
				}

				services := []models.Service{
					{
						ID: seedID(fmt.Sprintf("mentor-%d/intro", i)), MentorID: mentor.ID,
						Title: "Intro call", PriceCents: 0, DurationMinutes: 30, Active: true,
					},
					{
						ID: seedID(fmt.Sprintf("mentor-%d/session", i)), MentorID: mentor.ID,
						Title: "Mentorship session", PriceCents: 5000, Currency: cfg.DefaultCurrency,
						DurationMinutes: 60, Active: true,
					},
				}
				for _, svc := range services {
					if err := upsertByID(ctx, db.Collection("services"), svc.ID, svc); err != nil {
						return err
					}
				}

				// 09:00-12:00 and 13:00-17:00 UTC every day.
				for d := 0; d < days; d++ {
					date := today.AddDate(0, 0, d).Format(models.DateLayout)
					for _, window := range [][2]int{{9 * 60, 12 * 60}, {13 * 60, 17 * 60}} {
						slot := models.AvailabilitySlot{
							ID:          seedID(fmt.Sprintf("mentor-%d/%s/%d", i, date, window[0])),
							MentorID:    mentor.ID,
							Date:        date,
							StartMinute: window[0],
							EndMinute:   window[1],
							IsAvailable: true,
						}
						if err := upsertByID(ctx, db.Collection("availability"), slot.ID, slot); err != nil {
							return err
						}
					}
				}
				logger.Info("seeded mentor", zap.String("mentor_id", mentor.ID),
					zap.String("free_service", services[0].ID), zap.String("paid_service", services[1].ID))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d mentors; mentee id %s\n", mentors, mentee.ID)
			return nil
		},
	}
	cmd.Flags().IntVar(&mentors, "mentors", 3, "number of mentors to create")
	cmd.Flags().IntVar(&days, "days", 14, "days of availability to create")
	cmd.Flags().BoolVar(&reset, "reset", false, "clear the seeded collections first")
	return cmd
}

func upsertByID(ctx context.Context, coll *mongo.Collection, id string, doc interface{}) error {
	_, err := coll.ReplaceOne(ctx, bson.M{"id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", coll.Name(), id, err)
	}
	return nil
}
