package products

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/julianstephens/dosekeep/internal/catalog"
	"github.com/julianstephens/dosekeep/internal/cli"
	"github.com/julianstephens/dosekeep/internal/models"
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

const defaultColor = "#7C5CFF"

type ProductAddCmd struct {
	Name    string `arg:"" help:"Product name."`
	Tagline string `help:"Short description shown under the name."`
	Color   string `help:"Accent color as #RRGGBB." default:"#7C5CFF"`
}

func (c *ProductAddCmd) Run(ctx *cli.Context) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("product name cannot be empty")
	}
	color := c.Color
	if color == "" {
		color = defaultColor
	}
	if !hexColor.MatchString(color) {
		return fmt.Errorf("invalid color %q, expected #RRGGBB", color)
	}

	current := ctx.Store.State().CustomProducts
	for _, p := range current {
		if strings.EqualFold(p.Name, name) {
			return fmt.Errorf("custom product %q already exists", p.Name)
		}
	}

	product := models.CustomProduct{
		ID:      uuid.New().String(),
		Name:    name,
		Tagline: strings.TrimSpace(c.Tagline),
		Color:   color,
	}
	next := append(append([]models.CustomProduct{}, current...), product)
	ctx.Store.UpdateState(models.Patch{"customProducts": next})

	ctx.Printf("✓ Added custom product %s (%s)\n", product.Name, product.ID)
	return nil
}

type ProductListCmd struct{}

func (c *ProductListCmd) Run(ctx *cli.Context) error {
	s := ctx.Store.State()
	if len(s.Products) == 0 && len(s.CustomProducts) == 0 {
		ctx.Println("No products yet. Run 'dosekeep onboard' or 'dosekeep product add'.")
		return nil
	}

	if len(s.Products) > 0 {
		ctx.Println("Products:")
		for _, id := range s.Products {
			ctx.Printf("  - %s\n", catalog.Label(catalog.Products, id))
		}
	}
	if len(s.CustomProducts) > 0 {
		if len(s.Products) > 0 {
			ctx.Println()
		}
		ctx.Println("Custom products:")
		for _, p := range s.CustomProducts {
			line := fmt.Sprintf("  - %s  %s", p.Name, p.Color)
			if p.Tagline != "" {
				line += "  " + p.Tagline
			}
			ctx.Println(line)
		}
	}
	return nil
}
