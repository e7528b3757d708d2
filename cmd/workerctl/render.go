package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/danmuck/edgeworker/internal/protocol/session"
	"github.com/danmuck/edgeworker/internal/worker"
	"github.com/olekukonko/tablewriter"
)

func renderResponse(w io.Writer, req worker.Request, resp worker.Response) error {
	table := tablewriter.NewWriter(w)
	table.Header("Property", "Value")
	rows := [][]string{
		{"Request", strconv.FormatUint(resp.RequestID, 10)},
		{"Operation", req.Signature()},
		{"Outcome", resp.Kind.String()},
	}
	if resp.Kind == worker.Completed {
		if resp.ResultType != "" {
			rows = append(rows, []string{"Result Type", resp.ResultType})
		}
		rows = append(rows, []string{"Result", formatValue(resp.Result)})
	}
	if f := resp.Failure; f != nil {
		rows = append(rows, []string{"Failure", f.Type}, []string{"Message", f.Message})
		for i, c := range f.Causes {
			rows = append(rows, []string{fmt.Sprintf("Cause %d", i+1), c.Type + ": " + c.Message})
		}
		if f.Truncated {
			rows = append(rows, []string{"Truncated", fmt.Sprintf("yes (%d causes omitted)", f.OmittedCauses)})
		}
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderHello(w io.Writer, hello session.Hello) error {
	fmt.Fprintf(w, "worker=%s implementation=%s protocol=%d\n", hello.WorkerID, hello.Implementation, hello.ProtocolVersion)
	if hello.StartupError != "" {
		fmt.Fprintf(w, "startup error: %s\n", hello.StartupError)
	}
	table := tablewriter.NewWriter(w)
	table.Header("Operation")
	for _, op := range hello.Operations {
		if err := table.Append([]string{op}); err != nil {
			return err
		}
	}
	return table.Render()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return t
	case []byte:
		return fmt.Sprintf("%d bytes", len(t))
	case []string:
		return strings.Join(t, ",")
	case fmt.Stringer:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
