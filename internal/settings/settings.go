// Package settings holds the recognized discovery configuration options
// (§6), loaded from YAML and reloadable at runtime without a restart.
package settings

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ployz-io/zen/internal/elect"
)

// Settings mirrors §6's configuration surface.
type Settings struct {
	PingTimeout         time.Duration `yaml:"ping_timeout"`
	JoinTimeout         time.Duration `yaml:"join_timeout"`
	JoinRetryAttempts   int           `yaml:"join_retry_attempts"`
	JoinRetryDelay      time.Duration `yaml:"join_retry_delay"`
	MinimumMasterNodes  int           `yaml:"minimum_master_nodes"`
	RejoinOnMasterGone  bool          `yaml:"rejoin_on_master_gone"`
	SendLeaveRequest    bool          `yaml:"send_leave_request"`
	MaxPingsFromAnotherMaster int     `yaml:"max_pings_from_another_master"`

	MasterElection MasterElection `yaml:"master_election"`
	Unicast        Unicast        `yaml:"unicast"`
}

// MasterElection holds the filter flags ElectMaster applies (§6).
type MasterElection struct {
	FilterClient bool `yaml:"filter_client"`
	FilterData   bool `yaml:"filter_data"`
}

func (m MasterElection) ToFilters() elect.Filters {
	return elect.Filters{FilterClient: m.FilterClient, FilterData: m.FilterData}
}

// Unicast holds the seed list and connect concurrency (§6).
type Unicast struct {
	Hosts              []string `yaml:"hosts"`
	ConcurrentConnects int      `yaml:"concurrent_connects"`
}

// Default returns the documented defaults (§6).
func Default() Settings {
	pingTimeout := 3 * time.Second
	return Settings{
		PingTimeout:               pingTimeout,
		JoinTimeout:               20 * pingTimeout,
		JoinRetryAttempts:         3,
		JoinRetryDelay:            100 * time.Millisecond,
		MinimumMasterNodes:        1,
		RejoinOnMasterGone:        true,
		SendLeaveRequest:          true,
		MaxPingsFromAnotherMaster: 3,
		MasterElection:            MasterElection{FilterClient: true, FilterData: false},
		Unicast:                   Unicast{ConcurrentConnects: 10},
	}
}

// Load reads and merges YAML at path over Default(), so an incomplete file
// still produces a fully-populated Settings.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return Settings{}, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
