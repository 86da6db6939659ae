package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clientcomm/core/internal/services"
	"github.com/spf13/cobra"
)

var (
	courtDatesFile     string
	courtLocationsFile string
)

var courtCmd = &cobra.Command{
	Use:   "court",
	Short: "Court date reminders",
}

var courtImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Schedule reminders from a court date export",
	Long: `Replace all pending court reminders with reminders built from a court date
export (.csv or .xlsx) and its location lookup. A malformed row aborts the
whole import and leaves the previous reminders in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if courtDatesFile == "" || courtLocationsFile == "" {
			return errors.New("--dates and --locations are required")
		}

		var dates []services.CourtDate
		err := readFile(courtDatesFile, func(f *os.File) (err error) {
			dates, err = services.ReadCourtDates(courtDatesFile, f)
			return err
		})
		if err != nil {
			return err
		}
		var locations map[string]string
		err = readFile(courtLocationsFile, func(f *os.File) (err error) {
			locations, err = services.ReadLocations(courtLocationsFile, f)
			return err
		})
		if err != nil {
			return err
		}

		result, err := deps.Court.Import(context.Background(), services.ImportRequest{
			FileName:  filepath.Base(courtDatesFile),
			Dates:     dates,
			Locations: locations,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Batch %d: %d reminders scheduled, %d rows skipped\n", result.Batch.ID, result.Scheduled, result.Skipped)
		return nil
	},
}

func readFile(path string, read func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return read(f)
}

func init() {
	courtImportCmd.Flags().StringVar(&courtDatesFile, "dates", "", "court date export (.csv or .xlsx)")
	courtImportCmd.Flags().StringVar(&courtLocationsFile, "locations", "", "court location lookup (.csv or .xlsx)")

	courtCmd.AddCommand(courtImportCmd)
}
