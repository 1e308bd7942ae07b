package fitdir

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"

	"github.com/ripixel/fitglue-sync/pkg/types"
)

// decodeFile parses one FIT file into a Workout. The session message
// carries the summary fields; the file id supplies the start time when no
// session is present (some exporters write bare record files).
func (s *Source) decodeFile(path string) (*types.Workout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read FIT file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty FIT file")
	}

	fitDec := decoder.New(bytes.NewReader(data))

	w := &types.Workout{SourceFile: path}
	var startTime time.Time

	for fitDec.Next() {
		fitData, err := fitDec.Decode()
		if err != nil {
			return nil, fmt.Errorf("decode FIT file: %w", err)
		}

		for _, msg := range fitData.Messages {
			switch msg.Num {
			case typedef.MesgNumFileId:
				fileId := mesgdef.NewFileId(&msg)
				if startTime.IsZero() && !fileId.TimeCreated.IsZero() {
					startTime = fileId.TimeCreated.UTC()
				}

			case typedef.MesgNumSession:
				sessionMsg := mesgdef.NewSession(&msg)
				if !sessionMsg.StartTime.IsZero() {
					startTime = sessionMsg.StartTime.UTC()
				}
				if sessionMsg.Sport != typedef.SportInvalid {
					w.Sport = sessionMsg.Sport.String()
				}
				if sessionMsg.SportProfileName != "" {
					w.Name = sessionMsg.SportProfileName
				}
				if sessionMsg.TotalElapsedTime != 0xFFFFFFFF {
					w.ElapsedTimeSeconds = int(float64(sessionMsg.TotalElapsedTime) / 1000)
				}
				if sessionMsg.TotalDistance != 0xFFFFFFFF {
					w.DistanceMeters = float64(sessionMsg.TotalDistance) / 100
				}
				if sessionMsg.TotalCalories != 0xFFFF {
					w.Calories = int(sessionMsg.TotalCalories)
				}
				if sessionMsg.AvgHeartRate != 0xFF { // 0xFF is invalid
					w.AvgHeartRate = int(sessionMsg.AvgHeartRate)
				}
				if sessionMsg.MaxHeartRate != 0xFF {
					w.MaxHeartRate = int(sessionMsg.MaxHeartRate)
				}
			}
		}
	}

	if startTime.IsZero() {
		return nil, fmt.Errorf("FIT file has no timestamp")
	}
	w.StartTime = startTime

	if w.Name == "" {
		// Fall back to the file name, which is all some exporters give us.
		w.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if w.Sport == "" {
		w.Sport = "generic"
	}

	return w, nil
}
