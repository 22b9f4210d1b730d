package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/salahayoub/ballast/pkg/state"
	"github.com/salahayoub/ballast/pkg/storage"
)

// Storage locations inside the node data directory.
const (
	metaDirName    = "meta"
	metaDBFilename = "meta.db"
)

func main() {
	cfg, args, err := ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed: %v\n", err)
		os.Exit(2)
	}
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: statectl [flags] <term|manifest|state>")
		os.Exit(2)
	}

	level := zerolog.WarnLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if err := run(cfg, args[0], log); err != nil {
		log.Error().Err(err).Msg("statectl failed")
		os.Exit(1)
	}
}

// run opens the store read-only-in-spirit (no mutating operations are
// issued) and executes one inspection command.
func run(cfg *Config, command string, log zerolog.Logger) error {
	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ps, err := state.Open(store,
		state.WithLogger(log),
		state.WithClusterName(cfg.ClusterName),
	)
	if err != nil {
		return err
	}

	switch command {
	case "term":
		fmt.Println(ps.CurrentTerm())
	case "manifest":
		printManifest(ps)
	case "state":
		printState(ps)
	default:
		return fmt.Errorf("unknown command %q (want term, manifest, or state)", command)
	}
	return nil
}

// openStore builds the configured storage backend rooted in the data
// directory.
func openStore(cfg *Config, log zerolog.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case backendBolt:
		return storage.NewBoltStore(filepath.Join(cfg.DataDir, metaDBFilename), log)
	default:
		return storage.NewFileStore(filepath.Join(cfg.DataDir, metaDirName), log)
	}
}

func printManifest(ps *state.PersistedState) {
	m := ps.Manifest()
	fmt.Printf("currentTerm:         %d\n", m.CurrentTerm)
	fmt.Printf("clusterStateVersion: %d\n", m.ClusterStateVersion)
	fmt.Printf("globalGeneration:    %d\n", m.GlobalGeneration)
	uuids := make([]string, 0, len(m.IndexGenerations))
	for uuid := range m.IndexGenerations {
		uuids = append(uuids, uuid)
	}
	sort.Strings(uuids)
	for _, uuid := range uuids {
		fmt.Printf("index %s: generation %d\n", uuid, m.IndexGenerations[uuid])
	}
}

func printState(ps *state.PersistedState) {
	s := ps.LastAcceptedState()
	fmt.Printf("clusterName: %s\n", s.ClusterName)
	fmt.Printf("version:     %d\n", s.Version)
	coord := s.Metadata.Coordination
	fmt.Printf("coordination.term:      %d\n", coord.Term)
	fmt.Printf("acceptedConfiguration:  %v\n", coord.LastAcceptedConfiguration.NodeIDs())
	fmt.Printf("committedConfiguration: %v\n", coord.LastCommittedConfiguration.NodeIDs())
	for _, t := range coord.VotingTombstones {
		fmt.Printf("votingTombstone: %s (%s)\n", t.NodeID, t.NodeName)
	}
	names := make([]string, 0, len(s.Metadata.Indices))
	for name := range s.Metadata.Indices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		im := s.Metadata.Indices[name]
		fmt.Printf("index %s: uuid=%s version=%d shards=%d replicas=%d\n",
			name, im.UUID, im.Version, im.NumberOfShards, im.NumberOfReplicas)
	}
}
