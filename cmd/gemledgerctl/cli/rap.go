package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/gemledger/gemledger/internal/platform/db"
	"github.com/gemledger/gemledger/internal/rap"
)

// PriceCalculator is the subset of rap.Calculator the CLI uses.
type PriceCalculator interface {
	Calculate(ctx context.Context, p rap.Params) (rap.Quote, error)
}

func newRapCmd(rt *ctlEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rap",
		Short: "Rapaport price tooling",
	}
	var p rap.Params
	calc := &cobra.Command{
		Use:     "calc",
		Short:   "Price a stone against the current Rapaport tables",
		Example: "  gemledgerctl rap calc --color G --shape round --clarity VS1 --carat 1.2 --discount 5",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.New(cmd.Context(), rt.cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			return runRapCalc(cmd.Context(), cmd.OutOrStdout(), rap.NewCalculator(rap.NewRepository(pool), nil, rt.logger), p)
		},
	}
	calc.Flags().StringVar(&p.Color, "color", "", "color grade D-M")
	calc.Flags().StringVar(&p.Shape, "shape", "round", "shape name or abbreviation")
	calc.Flags().StringVar(&p.Clarity, "clarity", "", "clarity grade FL-I3")
	calc.Flags().Float64Var(&p.Carat, "carat", 0, "weight in carats")
	calc.Flags().Float64Var(&p.AdditionalDiscountPct, "discount", 0, "additional discount percent")
	_ = calc.MarkFlagRequired("color")
	_ = calc.MarkFlagRequired("clarity")
	_ = calc.MarkFlagRequired("carat")
	cmd.AddCommand(calc)
	return cmd
}

func runRapCalc(ctx context.Context, out io.Writer, calc PriceCalculator, p rap.Params) error {
	quote, err := calc.Calculate(ctx, p)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(quote)
}
