package quotactl

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"sigs.k8s.io/yaml"
)

func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "table", "":
		return renderTable(w, v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTable(w io.Writer, v any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch val := v.(type) {
	case quotadomain.Quota:
		writeQuotas(tw, []quotadomain.Quota{val})
	case []quotadomain.Quota:
		writeQuotas(tw, val)
	case quotadomain.Usage:
		fmt.Fprintln(tw, "PROJECT\tKIND\tUSAGE\tUNIT")
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", val.ProjectID, val.Kind, val.Usage, val.Unit)
	case quotadomain.Decision:
		result := "admitted"
		if !val.Admitted {
			result = "denied: " + val.Reason
		}
		fmt.Fprintln(tw, "PROJECT\tKIND\tUSAGE\tREQUESTED\tLIMIT\tRESULT")
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", val.ProjectID, val.Kind, val.Usage, val.Requested, val.Limit, result)
	case quotadomain.Expiration:
		writeExpirations(tw, []quotadomain.Expiration{val})
	case []quotadomain.Expiration:
		writeExpirations(tw, val)
	case []quotadomain.QuotaChange:
		fmt.Fprintln(tw, "WHEN\tPREVIOUS\tNEW\tBACKEND\tREQUEST")
		for _, c := range val {
			prev := "-"
			if c.PreviousLimit != nil {
				prev = strconv.FormatInt(*c.PreviousLimit, 10)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", c.CreatedAt.Format("2006-01-02 15:04:05"), prev, c.NewLimit, c.Backend, c.RequestID)
		}
	default:
		return fmt.Errorf("no table layout for %T", v)
	}
	return tw.Flush()
}

func writeQuotas(w io.Writer, quotas []quotadomain.Quota) {
	fmt.Fprintln(w, "PROJECT\tKIND\tLIMIT\tUNIT\tSOURCE")
	for _, q := range quotas {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", q.ProjectID, q.Kind, q.Limit, q.Unit, q.Source)
	}
}

func writeExpirations(w io.Writer, exps []quotadomain.Expiration) {
	fmt.Fprintln(w, "PROJECT\tEXPIRES_ON")
	for _, e := range exps {
		fmt.Fprintf(w, "%s\t%s\n", e.ProjectID, e.ExpiresOn)
	}
}
