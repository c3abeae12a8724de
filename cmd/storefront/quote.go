package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/notifications"
	"github.com/hanko-field/storefront/internal/services"
)

// promotionFile is the YAML layout accepted by `promotions quote`.
type promotionFile struct {
	Promotions []promotionEntry `yaml:"promotions"`
}

type promotionEntry struct {
	ID            string     `yaml:"id"`
	Name          string     `yaml:"name"`
	PromotionBy   string     `yaml:"promotionBy"`
	PromotionType string     `yaml:"promotionType"`
	Value         float64    `yaml:"value"`
	Active        *bool      `yaml:"active"`
	StartsAt      *time.Time `yaml:"startsAt"`
	EndsAt        *time.Time `yaml:"endsAt"`
	ProductIDs    []string   `yaml:"productIds"`
}

func (e promotionEntry) toDomain() domain.Promotion {
	active := true
	if e.Active != nil {
		active = *e.Active
	}
	by := domain.PromotionBy(strings.TrimSpace(e.PromotionBy))
	if by == "" {
		by = domain.PromotionByValue
	}
	return domain.Promotion{
		ID:            e.ID,
		Name:          e.Name,
		PromotionBy:   by,
		PromotionType: domain.PromotionType(strings.TrimSpace(e.PromotionType)),
		Value:         e.Value,
		Active:        active,
		StartsAt:      e.StartsAt,
		EndsAt:        e.EndsAt,
		ProductIDs:    e.ProductIDs,
	}
}

func loadPromotionFile(r io.Reader) ([]domain.Promotion, error) {
	var file promotionFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse promotions: %w", err)
	}
	out := make([]domain.Promotion, 0, len(file.Promotions))
	for _, entry := range file.Promotions {
		out = append(out, entry.toDomain())
	}
	return out, nil
}

type quoteOptions struct {
	price    int64
	file     string
	at       string
	currency string
	locale   string
}

func promotionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promotions",
		Short: "Work with promotion rules offline",
	}
	cmd.AddCommand(quoteCmd())
	return cmd
}

func quoteCmd() *cobra.Command {
	opts := &quoteOptions{}
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a product against a YAML file of promotions",
		Example: `  storefront promotions quote --price 129900 --promotions promos.yaml
  storefront promotions quote --price 50000 --promotions - --at 2025-10-21T00:00:00Z < promos.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuote(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().Int64Var(&opts.price, "price", 0, "base price in minor units")
	cmd.Flags().StringVar(&opts.file, "promotions", "", "promotions YAML file, or - for stdin")
	cmd.Flags().StringVar(&opts.at, "at", "", "evaluation time in RFC3339 (default now)")
	cmd.Flags().StringVar(&opts.currency, "currency", "INR", "currency used to format amounts")
	cmd.Flags().StringVar(&opts.locale, "locale", "en-IN", "locale used to format amounts")
	_ = cmd.MarkFlagRequired("price")
	_ = cmd.MarkFlagRequired("promotions")
	return cmd
}

func runQuote(stdin io.Reader, out io.Writer, opts *quoteOptions) error {
	if opts.price < 0 {
		return errors.New("price must not be negative")
	}
	at := time.Now().UTC()
	if raw := strings.TrimSpace(opts.at); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("--at must be RFC3339: %w", err)
		}
		at = parsed
	}

	in := stdin
	if opts.file != "-" {
		f, err := os.Open(opts.file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	promotions, err := loadPromotionFile(in)
	if err != nil {
		return err
	}

	result := services.ApplyPromotions(opts.price, promotions, at)
	format := func(minor int64) string { return notifications.FormatAmount(minor, opts.currency, opts.locale) }

	fmt.Fprintf(out, "base:       %s\n", format(result.BasePrice))
	if result.Promotion == nil {
		fmt.Fprintln(out, "promotion:  none applicable")
		fmt.Fprintf(out, "price:      %s\n", format(result.DiscountedPrice))
		return nil
	}
	fmt.Fprintf(out, "promotion:  %s (%s)\n", result.Promotion.Name, result.Promotion.ID)
	fmt.Fprintf(out, "discount:   %s (%.2f%% off)\n", format(result.Discount), result.PercentOff)
	fmt.Fprintf(out, "price:      %s\n", format(result.DiscountedPrice))
	return nil
}
