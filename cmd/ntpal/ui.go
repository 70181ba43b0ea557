package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/AndrewLester/sntp/internal/ui"
	"github.com/AndrewLester/sntp/pkg/ntpal"
	"gopkg.in/yaml.v3"
)

func printResult(w io.Writer, result *ntpal.QueryResult) error {
	if output != "text" {
		return encode(w, result)
	}

	fmt.Fprintln(w, ui.TitleStyle("NTPal - Query"))
	fmt.Fprintln(w, fmt.Sprint(
		ui.OffsetStyle(signed(result.ClockOffset())),
		" +/- ", time.Duration(result.Delay)*time.Second,
		" ", result.Server, " ", result.Address,
	))
	fmt.Fprintln(w, ui.HelpStyle(fmt.Sprintf(
		"stratum %d, refid %s, server time %s",
		result.Stratum, result.RefID, result.Time.Format(time.RFC3339),
	)))
	return nil
}

func encode(w io.Writer, v interface{}) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
}

func signed(d time.Duration) string {
	if d > 0 {
		return "+" + d.String()
	}
	return d.String()
}
