package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/casesynth/internal/hl7"
	mathutil "github.com/inferloop/casesynth/internal/utils/math"
	"github.com/inferloop/casesynth/pkg/constants"
)

// Config describes the fixture case-report files to write.
type Config struct {
	DataDir       string    `json:"data_dir"`
	Jurisdictions []string  `json:"jurisdictions"`
	Codes         []int     `json:"codes"`
	StartDate     string    `json:"start_date"`
	Days          int       `json:"days"`
	Patterns      []Pattern `json:"patterns"`
	NoiseStdDev   float64   `json:"noise_std_dev"`
	UndatedRate   float64   `json:"undated_rate"`
	Seed          int64     `json:"seed"`
}

// Pattern contributes to the expected daily case count.
type Pattern struct {
	Type      string  `json:"type"` // constant, weekly, seasonal, linear, outbreak
	Amplitude float64 `json:"amplitude"`
	Period    int     `json:"period"`
	Trend     float64 `json:"trend"`
	Center    int     `json:"center"`
	Width     float64 `json:"width"`
}

type Generator struct {
	config *Config
	logger *logrus.Logger
	rand   *rand.Rand
}

func main() {
	var (
		configFile   = flag.String("config", "", "Configuration file path")
		dataDir      = flag.String("data-dir", "hl7_fixtures", "Output root directory")
		jurisdiction = flag.String("jurisdiction", "Iowa", "Jurisdiction name or abbreviation")
		code         = flag.Int("code", 10311, "Condition code")
		days         = flag.Int("days", 365, "Number of days to cover")
		seed         = flag.Int64("seed", 0, "Random seed (default: clock)")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	// Setup logging
	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Load or create config
	var config *Config
	if *configFile != "" {
		var err error
		config, err = loadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		config = getDefaultConfig()
		config.DataDir = *dataDir
		config.Jurisdictions = []string{*jurisdiction}
		config.Codes = []int{*code}
		config.Days = *days
		config.Seed = *seed
	}
	if config.Seed == 0 {
		config.Seed = time.Now().UnixNano()
	}

	generator := NewGenerator(config, logger)

	logger.WithFields(logrus.Fields{
		"data_dir":      config.DataDir,
		"jurisdictions": config.Jurisdictions,
		"codes":         config.Codes,
		"days":          config.Days,
		"seed":          config.Seed,
	}).Info("Starting case-report fixture generation")

	files, err := generator.Generate()
	if err != nil {
		log.Fatalf("Failed to generate fixtures: %v", err)
	}

	logger.WithField("files", len(files)).Info("Fixture generation completed")
}

func NewGenerator(config *Config, logger *logrus.Logger) *Generator {
	return &Generator{
		config: config,
		logger: logger,
		rand:   rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate writes <data_dir>/<jurisdiction>/<code>.csv for every configured
// jurisdiction and code and returns the written paths.
func (g *Generator) Generate() ([]string, error) {
	start, err := time.Parse(constants.DateLayout, g.config.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", g.config.StartDate, err)
	}
	if g.config.Days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", g.config.Days)
	}

	var files []string
	for _, name := range g.config.Jurisdictions {
		j, err := hl7.ResolveJurisdiction(name)
		if err != nil {
			return nil, err
		}
		for _, code := range g.config.Codes {
			path := filepath.Join(g.config.DataDir, j.Name, strconv.Itoa(code)+".csv")
			rows, err := g.writeFile(path, start)
			if err != nil {
				return nil, fmt.Errorf("failed to write %s: %w", path, err)
			}
			g.logger.WithFields(logrus.Fields{"file": path, "rows": rows}).Debug("Fixture written")
			files = append(files, path)
		}
	}
	return files, nil
}

func (g *Generator) writeFile(path string, start time.Time) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(hl7.Header); err != nil {
		return 0, err
	}

	rows := 0
	for day, count := range g.DailyCounts() {
		anchor := start.AddDate(0, 0, day)
		for c := 0; c < count; c++ {
			if err := writer.Write(g.caseRow(anchor)); err != nil {
				return rows, err
			}
			rows++
		}
	}

	writer.Flush()
	return rows, writer.Error()
}

// DailyCounts returns the non-negative case count of every day.
func (g *Generator) DailyCounts() []int {
	counts := make([]int, g.config.Days)
	for i := range counts {
		value := g.expectedCount(i)
		if g.config.NoiseStdDev > 0 {
			value += g.rand.NormFloat64() * g.config.NoiseStdDev
		}
		counts[i] = mathutil.RoundToInt(mathutil.Clamp(value, 0, math.MaxInt32))
	}
	return counts
}

func (g *Generator) expectedCount(day int) float64 {
	value := 0.0
	t := float64(day)

	for _, pattern := range g.config.Patterns {
		switch pattern.Type {
		case "constant":
			value += pattern.Amplitude
		case "weekly":
			// Fewer reports on weekends
			if day%7 >= 5 {
				value -= pattern.Amplitude
			}
		case "seasonal":
			if pattern.Period > 0 {
				value += pattern.Amplitude * math.Sin(2*math.Pi*t/float64(pattern.Period))
			}
		case "linear":
			value += pattern.Trend * t
		case "outbreak":
			if pattern.Width > 0 {
				d := (t - float64(pattern.Center)) / pattern.Width
				value += pattern.Amplitude * math.Exp(-d*d/2)
			}
		}
	}

	return value
}

var (
	races     = []string{"W", "B", "A", "I", "P", "O", "U"}
	ethnicity = []string{"H", "N", "U"}
	statuses  = []string{"C", "P", "S"}
)

// caseRow builds one record whose earliest date is anchor. Some records carry
// no dates at all and are skipped by the loader.
func (g *Generator) caseRow(anchor time.Time) []string {
	row := make([]string, len(hl7.Header))
	set := func(field, value string) {
		for i, h := range hl7.Header {
			if h == field {
				row[i] = value
				return
			}
		}
	}

	age := strconv.Itoa(15 + g.rand.Intn(55))
	if g.rand.Float64() < 0.02 {
		age = constants.UnknownAge
	}
	sex := "M"
	switch r := g.rand.Float64(); {
	case r < 0.3:
		sex = "F"
	case r > 0.98:
		sex = "U"
	}
	pregnant := "N"
	if sex == "F" && age != constants.UnknownAge && g.rand.Float64() < 0.1 {
		pregnant = "Y"
	}

	set(hl7.FieldAge, age)
	set(hl7.FieldSex, sex)
	set(hl7.FieldRace, races[g.rand.Intn(len(races))])
	set(hl7.FieldEthnicity, ethnicity[g.rand.Intn(len(ethnicity))])
	set(hl7.FieldCaseStatus, statuses[g.rand.Intn(len(statuses))])
	set(hl7.FieldCounty, fmt.Sprintf("%03d", 1+2*g.rand.Intn(50)))
	set(hl7.FieldPregnant, pregnant)
	set(hl7.FieldCount, "1")

	if g.rand.Float64() < g.config.UndatedRate {
		return row
	}
	set(hl7.FieldFirstElecSubmitDt, anchor.Format(constants.DateLayout))
	set(hl7.FieldDiagDt, anchor.AddDate(0, 0, g.rand.Intn(4)).Format(constants.DateLayout))
	if g.rand.Float64() < 0.5 {
		set(hl7.FieldInvestStartDt, anchor.AddDate(0, 0, 1+g.rand.Intn(10)).Format(constants.DateLayout))
	}
	if g.rand.Float64() < 0.05 {
		set(hl7.FieldHospAdmitDt, anchor.AddDate(0, 0, g.rand.Intn(7)).Format(constants.DateLayout))
	}
	return row
}

func loadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := getDefaultConfig()
	decoder := json.NewDecoder(file)
	err = decoder.Decode(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

func getDefaultConfig() *Config {
	return &Config{
		DataDir:       "hl7_fixtures",
		Jurisdictions: []string{"Iowa"},
		Codes:         []int{10311},
		StartDate:     "2021-01-01",
		Days:          365,
		Patterns: []Pattern{
			{
				Type:      "constant",
				Amplitude: 6.0,
			},
			{
				Type:      "weekly",
				Amplitude: 3.0,
			},
			{
				Type:      "seasonal",
				Amplitude: 2.0,
				Period:    365,
			},
			{
				Type:      "outbreak",
				Amplitude: 8.0,
				Center:    200,
				Width:     10,
			},
		},
		NoiseStdDev: 1.5,
		UndatedRate: 0.02,
	}
}
