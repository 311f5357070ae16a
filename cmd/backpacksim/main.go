// Command backpacksim runs the backpack bus protocol entirely in
// simulated time, driving the real Engine through the sim package's
// software Wire instead of real hardware. It exists to exercise and
// demonstrate the protocol scenarios without a serial adapter attached.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	backpack "github.com/daedaluz/backpackbus"
	"github.com/daedaluz/backpackbus/sim"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})

func main() {
	scenario := flag.String("scenario", "enumerate", "scenario to run: enumerate, arbitration, parity-fault, id-write, reset-mid-frame, quiescence, all")
	verbose := flag.Bool("v", false, "enable debug-level logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: backpacksim [options]\n\nRuns a backpack bus scenario against an in-process simulated bus.\n\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  backpacksim -scenario arbitration\n")
		fmt.Fprintf(os.Stderr, "  backpacksim -scenario all\n")
	}
	flag.Parse()

	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	scenarios := map[string]func(*log.Logger) error{
		"enumerate":       scenarioEnumerate,
		"arbitration":     scenarioArbitration,
		"parity-fault":    scenarioParityFault,
		"id-write":        scenarioIDWrite,
		"reset-mid-frame": scenarioResetMidFrame,
		"quiescence":      scenarioQuiescence,
	}

	names := []string{*scenario}
	if *scenario == "all" {
		names = []string{"enumerate", "arbitration", "parity-fault", "id-write", "reset-mid-frame", "quiescence"}
	}

	for _, name := range names {
		run, ok := scenarios[name]
		if !ok {
			fmt.Fprintf(os.Stderr, "error: unknown scenario %q\n", name)
			flag.Usage()
			os.Exit(1)
		}
		l := logger.With("scenario", name)
		if err := run(l); err != nil {
			l.Error("scenario failed", "err", err)
			os.Exit(1)
		}
	}
}

// scenarioEnumerate is spec.md §8 scenario 1: one slave, its ID bytes
// come back unchanged and it claims the first bus address.
func scenarioEnumerate(l *log.Logger) error {
	bus, nodes := sim.Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	rounds, err := bus.Enumerate()
	if err != nil {
		return err
	}
	addr := nodes[0].Engine.BusAddr()
	l.Info("enumerated", "rounds", rounds, "bus_addr", addr)

	data, err := bus.ReadEeprom(addr, 0, 4)
	if err != nil {
		return err
	}
	l.Info("read back id", "data", fmt.Sprintf("% X", data))
	return nil
}

// scenarioArbitration is spec.md §8 scenario 2: two IDs differing only
// in their last bit, resolved over two enumeration rounds.
func scenarioArbitration(l *log.Logger) error {
	bus, nodes := sim.Loopback([][]byte{
		{0x01, 0x02, 0x03, 0x04},
		{0x01, 0x02, 0x03, 0x05},
	}, 16)
	rounds, err := bus.Enumerate()
	if err != nil {
		return err
	}
	l.Info("enumerated", "rounds", rounds)
	for _, n := range nodes {
		l.Info("slave", "id", fmt.Sprintf("% X", n.Store.ID()), "bus_addr", n.Engine.BusAddr())
	}
	return nil
}

// scenarioParityFault is spec.md §8 scenario 3: an address byte with
// deliberately inverted parity is NACKed and the slave goes silent.
func scenarioParityFault(l *log.Logger) error {
	bus, nodes := sim.Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	if _, err := bus.Enumerate(); err != nil {
		return err
	}
	addr := nodes[0].Engine.BusAddr()

	bus.Reset()
	ack := bus.SendCorruptAddress(addr)
	l.Info("sent corrupt address", "acked", ack, "state", nodes[0].Engine.State())

	ack = bus.SendByte(backpack.CmdReadEeprom)
	l.Info("command after fault", "acked", ack, "expect", false)
	return nil
}

// scenarioIDWrite is spec.md §8 scenario 4: a write into the immutable
// ID range is ACKed on the wire but never persisted.
func scenarioIDWrite(l *log.Logger) error {
	bus, nodes := sim.Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	if _, err := bus.Enumerate(); err != nil {
		return err
	}
	addr := nodes[0].Engine.BusAddr()

	if err := bus.WriteEeprom(addr, 0, []byte{0xFF}); err != nil {
		return err
	}
	data, err := bus.ReadEeprom(addr, 0, 1)
	if err != nil {
		return err
	}
	l.Info("id byte after write attempt", "value", fmt.Sprintf("0x%02X", data[0]), "expect", "0x01")
	return nil
}

// scenarioResetMidFrame is spec.md §8 scenario 5: a reset delivered in
// the middle of a write command still leaves the slave enumerated at
// its prior address.
func scenarioResetMidFrame(l *log.Logger) error {
	bus, nodes := sim.Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	if _, err := bus.Enumerate(); err != nil {
		return err
	}
	addr := nodes[0].Engine.BusAddr()

	bus.Address(addr, backpack.CmdWriteEeprom)
	bus.SendByte(8) // offset, the data byte never arrives
	bus.Reset()

	l.Info("after mid-frame reset",
		"enumerated", nodes[0].Engine.Enumerated(),
		"bus_addr", nodes[0].Engine.BusAddr(),
		"state", nodes[0].Engine.State())
	return nil
}

// scenarioQuiescence is spec.md §8 scenario 6: after two watchdog
// periods with no edges and the line high, the slave enters deep
// sleep; the next falling edge wakes it and the bus keeps working.
func scenarioQuiescence(l *log.Logger) error {
	bus, nodes := sim.Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	if _, err := bus.Enumerate(); err != nil {
		return err
	}

	bus.IdleWatchdogTwice()
	l.Debug("after quiescence", "state", nodes[0].Engine.State())

	rounds, err := bus.Enumerate()
	if err != nil {
		return err
	}
	l.Info("re-enumerated after wake", "rounds", rounds, "bus_addr", nodes[0].Engine.BusAddr())
	return nil
}
