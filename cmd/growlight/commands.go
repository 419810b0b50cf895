package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gobot.io/x/gobot/v2/platforms/raspi"

	"github.com/sweeney/growlight/internal/config"
	"github.com/sweeney/growlight/internal/logic"
	"github.com/sweeney/growlight/internal/rtc"
	"github.com/sweeney/growlight/internal/update"
)

var clockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Print the real-time clock and alarm flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return withClock(cfg, func(c rtc.Clock) error {
			return printClock(cmd.OutOrStdout(), c, cfg.Params())
		})
	},
}

var setClockCmd = &cobra.Command{
	Use:   "set-clock [RFC3339|now]",
	Short: "Set the real-time clock",
	Long:  "Set the real-time clock to the given RFC3339 time, or to the host clock with \"now\". The wall-clock fields are written as given; no zone conversion is applied.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseClockArg(args[0], time.Now)
		if err != nil {
			return err
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return withClock(cfg, func(c rtc.Clock) error {
			if err := c.SetTime(t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "clock set to %s\n", t.Format(clockFormat))
			return nil
		})
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for the update password",
	Long:  "Print a bcrypt hash suitable for update.password_hash. The password is read from the first line of stdin when not given as an argument.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordArg(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		hash, err := update.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

const clockFormat = "2006-01-02 15:04:05 Mon"

// withClock opens the RTC on the configured bus for the duration of fn.
func withClock(cfg config.Config, fn func(rtc.Clock) error) error {
	adaptor := raspi.NewAdaptor()
	if err := adaptor.Connect(); err != nil {
		return fmt.Errorf("connect i2c adaptor: %w", err)
	}
	defer adaptor.Finalize()

	clock, err := rtc.Open(adaptor, cfg.Hardware.I2CBus)
	if err != nil {
		return fmt.Errorf("init rtc: %w", err)
	}
	defer clock.Close()
	return fn(clock)
}

func printClock(w io.Writer, clock rtc.Clock, p logic.Params) error {
	now, err := clock.Now()
	if err != nil {
		return err
	}
	lost, err := clock.LostPower()
	if err != nil {
		return err
	}
	onFired, err := clock.AlarmFired(rtc.SlotOn)
	if err != nil {
		return err
	}
	offFired, err := clock.AlarmFired(rtc.SlotOff)
	if err != nil {
		return err
	}

	offHour, offMinute := p.OffClock()
	fmt.Fprintf(w, "Clock:      %s\n", now.Format(clockFormat))
	fmt.Fprintf(w, "Lost power: %t\n", lost)
	fmt.Fprintf(w, "Alarm on:   fired=%t\n", onFired)
	fmt.Fprintf(w, "Alarm off:  fired=%t\n", offFired)
	fmt.Fprintf(w, "Schedule:   %02d:%02d-%02d:%02d\n", p.OnHour, p.OnMinute, offHour, offMinute)
	fmt.Fprintf(w, "Desired:    %s\n", logic.Desired(now, p))
	return nil
}

func parseClockArg(arg string, hostNow func() time.Time) (time.Time, error) {
	if arg == "now" {
		return rtc.Wall(hostNow()), nil
	}
	t, err := time.Parse(time.RFC3339, arg)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", arg, err)
	}
	return rtc.Wall(t), nil
}

func passwordArg(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}
