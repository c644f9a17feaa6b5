package root

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"visforge/cmd/forgecheck/ui"
	"visforge/forge"
	"visforge/savestore"
)

const simulationUser = "simulation"

type simulateOptions struct {
	dataPath   string
	duration   time.Duration
	clicks     int
	seed       uint64
	target     string
	slot       string
	metricsOut string
}

func newSimulateCmd() *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play the game data greedily to see how long content takes to reach",
		Long: "Simulate a player who clicks at a steady rate, crafts what the active quests need, turns quests in, " +
			"unlocks every affordable node and buys every affordable upgrade. Prints when each node and quest was reached.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dataPath, "data", "", "game data file (default: embedded data)")
	cmd.Flags().DurationVar(&opts.duration, "duration", time.Hour, "simulated play time")
	cmd.Flags().IntVar(&opts.clicks, "clicks", 2, "clicks per simulated second")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "seed for material drops")
	cmd.Flags().StringVar(&opts.target, "store", "", "autosave into this save store, e.g. fs:./saves")
	cmd.Flags().StringVar(&opts.slot, "slot", simulationUser, "slot to autosave into")
	cmd.Flags().StringVar(&opts.metricsOut, "metrics-out", "", "write event counters in Prometheus text format to this file")

	return cmd
}

// milestone records when something was first reached.
type milestone struct {
	at   time.Duration
	what string
}

func runSimulation(cmd *cobra.Command, opts simulateOptions) error {
	ctx := cmd.Context()
	if opts.clicks < 0 {
		return errors.New("clicks must not be negative")
	}
	data, problems, err := loadData(opts.dataPath)
	if err != nil {
		return err
	}
	for _, problem := range problems {
		logger.Warn("Game data problem: %v", problem)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := forge.NewFakeClock(start)
	ctrl := forge.NewController(data, nil,
		forge.WithLogger(logger),
		forge.WithClock(clock),
		forge.WithRandom(forge.NewRandomSource(opts.seed)),
	)

	registry := prometheus.NewRegistry()
	metrics, err := forge.NewMetricsPublisher(registry)
	if err != nil {
		return err
	}

	var autosaver *forge.Autosaver
	if opts.target != "" {
		store, err := savestore.Open(ctx, opts.target, data.Economy.PrimaryCurrency)
		if err != nil {
			return err
		}
		if closer, ok := store.(io.Closer); ok {
			defer func() { _ = closer.Close() }()
		}
		schedule := data.Economy.AutosaveSchedule
		if schedule == "" {
			schedule = "@every 30s"
		}
		if autosaver, err = forge.NewAutosaver(schedule, store, opts.slot, logger); err != nil {
			return err
		}
	}

	player := newGreedyPlayer(ctrl)
	var milestones []milestone
	saves := 0
	for elapsed := time.Duration(0); elapsed < opts.duration; elapsed += time.Second {
		for i := 0; i < opts.clicks; i++ {
			ctrl.Conjure()
		}
		player.act()
		ctrl.Tick(time.Second)
		clock.Advance(time.Second)

		events := ctrl.DrainEvents()
		for _, event := range events {
			switch event.Name {
			case forge.EventNodeUnlocked:
				milestones = append(milestones, milestone{at: elapsed + time.Second, what: "node " + event.SourceId})
			case forge.EventQuestAdvanced:
				milestones = append(milestones, milestone{at: elapsed + time.Second, what: fmt.Sprintf("quest %s -> %s", event.SourceId, event.Value)})
			}
		}
		forge.Publish(ctx, logger, nil, simulationUser, events, metrics)

		if autosaver != nil {
			saved, err := autosaver.MaybeSave(ctx, clock.Now(), ctrl)
			if err != nil {
				return err
			}
			if saved {
				saves++
			}
		}
	}
	if autosaver != nil {
		if err := autosaver.Flush(ctx, ctrl); err != nil {
			return err
		}
		saves++
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.Heading(ui.IconClock, fmt.Sprintf("Simulated %s at %d clicks/s", opts.duration, opts.clicks)))
	if len(milestones) == 0 {
		fmt.Fprintln(out, ui.Muted.Render("nothing was reached"))
	}
	for _, m := range milestones {
		fmt.Fprintf(out, "- %s %s\n", ui.Muted.Render(fmt.Sprintf("%8s", m.at)), m.what)
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, renderSession("final state", ctrl.View()))
	if autosaver != nil {
		fmt.Fprintln(out, ui.LabelValue("Autosaves", fmt.Sprintf("%d into %s/%s", saves, opts.target, opts.slot)))
	}

	if opts.metricsOut != "" {
		if err := prometheus.WriteToTextfile(opts.metricsOut, registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// greedyPlayer spends resources the moment something becomes affordable.
type greedyPlayer struct {
	ctrl       *forge.Controller
	categoryOf map[string]string
}

func newGreedyPlayer(ctrl *forge.Controller) *greedyPlayer {
	p := &greedyPlayer{ctrl: ctrl, categoryOf: make(map[string]string)}
	for _, category := range ctrl.Data().Catalog.Categories() {
		for _, item := range category.Items {
			if _, ok := p.categoryOf[item.Name]; !ok {
				p.categoryOf[item.Name] = category.Name
			}
		}
	}
	return p
}

func (p *greedyPlayer) act() {
	data := p.ctrl.Data()

	// Craft toward the active quest stages, then turn them in
	for _, config := range data.QuestLines() {
		line, _ := p.ctrl.QuestLine(config.ID)
		for _, shortfall := range line.Shortfall(p.ctrl.Ledger()) {
			category, ok := p.categoryOf[shortfall.Resource]
			if !ok {
				continue
			}
			for i := uint64(0); i < shortfall.Missing(); i++ {
				if err := p.ctrl.Craft(category, shortfall.Resource); err != nil {
					break
				}
			}
		}
		_, _ = p.ctrl.AdvanceQuest(config.ID)
	}

	ordered, _ := data.Tree.TopologicalOrder()
	for _, node := range ordered {
		if p.ctrl.Graph().State(node.ID) == forge.NodeUnlockable && p.ctrl.Ledger().CanAfford(node.Cost) {
			_, _ = p.ctrl.Unlock(node.ID)
		}
	}

	for _, upgrade := range data.Upgrades() {
		if p.ctrl.Ledger().CanAfford(upgrade.Cost) {
			_, _ = p.ctrl.PurchaseUpgrade(upgrade.ID)
		}
	}
}
