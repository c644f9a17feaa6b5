package forge

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"

	"gopkg.in/yaml.v3"
)

// RecipeItem is one craftable item and what it consumes.
type RecipeItem struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Cost        Cost   `json:"cost,omitempty" yaml:"cost,omitempty"`
	// Locked items need an UnlockRecipe effect naming them before they can be crafted.
	Locked bool `json:"locked,omitempty" yaml:"locked,omitempty"`
}

// RecipeCategory groups items behind an optional capability flag.
type RecipeCategory struct {
	Name         string        `json:"name" yaml:"name"`
	RequiresFlag string        `json:"requires_flag,omitempty" yaml:"requires_flag,omitempty"`
	Items        []*RecipeItem `json:"items,omitempty" yaml:"items,omitempty"`
}

// Item returns the named item of the category.
func (c *RecipeCategory) Item(name string) (*RecipeItem, bool) {
	for _, item := range c.Items {
		if item.Name == name {
			return item, true
		}
	}
	return nil, false
}

// RecipeCategories is the on-disk form of a catalog. Besides a list of
// categories it accepts the compact object form
// {category: {item: {resource: count}}}.
type RecipeCategories []*RecipeCategory

func (r *RecipeCategories) UnmarshalJSON(data []byte) error {
	if isJSONArray(data) {
		var list []*RecipeCategory
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*r = list
		return nil
	}

	var categories RecipeCategories
	err := decodeOrderedObject(data, func(category string, raw json.RawMessage) error {
		entry := &RecipeCategory{Name: category}
		err := decodeOrderedObject(raw, func(item string, cost json.RawMessage) error {
			recipe := &RecipeItem{Name: item}
			if err := json.Unmarshal(cost, &recipe.Cost); err != nil {
				return fmt.Errorf("recipe %s/%s: %w", category, item, err)
			}
			entry.Items = append(entry.Items, recipe)
			return nil
		})
		if err != nil {
			return err
		}
		categories = append(categories, entry)
		return nil
	})
	if err != nil {
		return err
	}
	*r = categories
	return nil
}

func (r *RecipeCategories) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var list []*RecipeCategory
		if err := value.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	}

	var categories RecipeCategories
	err := decodeOrderedMapping(value, func(category string, node *yaml.Node) error {
		entry := &RecipeCategory{Name: category}
		err := decodeOrderedMapping(node, func(item string, cost *yaml.Node) error {
			recipe := &RecipeItem{Name: item}
			if err := cost.Decode(&recipe.Cost); err != nil {
				return fmt.Errorf("recipe %s/%s: %w", category, item, err)
			}
			entry.Items = append(entry.Items, recipe)
			return nil
		})
		if err != nil {
			return err
		}
		categories = append(categories, entry)
		return nil
	})
	if err != nil {
		return err
	}
	*r = categories
	return nil
}

// RecipeCatalog is the immutable set of craftable items. A nil catalog is
// valid and has nothing in it.
type RecipeCatalog struct {
	categories []*RecipeCategory
	byName     map[string]*RecipeCategory
}

// NewRecipeCatalog builds a catalog. Self-referential recipes and duplicate
// names are dropped and reported; the rest of the catalog is still usable.
func NewRecipeCatalog(categories []*RecipeCategory) (*RecipeCatalog, []error) {
	catalog := &RecipeCatalog{byName: make(map[string]*RecipeCategory)}
	var problems []error

	for _, category := range categories {
		if category == nil || category.Name == "" {
			problems = append(problems, fmt.Errorf("%w: recipe category without a name", ErrInvalidGameData))
			continue
		}
		if _, exists := catalog.byName[category.Name]; exists {
			problems = append(problems, fmt.Errorf("%w: duplicate recipe category %q", ErrInvalidGameData, category.Name))
			continue
		}

		kept := &RecipeCategory{Name: category.Name, RequiresFlag: category.RequiresFlag}
		seen := make(map[string]struct{}, len(category.Items))
		for _, item := range category.Items {
			if item == nil || item.Name == "" {
				problems = append(problems, fmt.Errorf("%w: unnamed item in category %q", ErrInvalidGameData, category.Name))
				continue
			}
			if _, dup := seen[item.Name]; dup {
				problems = append(problems, fmt.Errorf("%w: duplicate item %q in category %q", ErrInvalidGameData, item.Name, category.Name))
				continue
			}
			// An item may never consume itself
			if item.Cost.Amount(item.Name) > 0 {
				problems = append(problems, fmt.Errorf("%w: recipe %q in category %q requires itself", ErrInvalidGameData, item.Name, category.Name))
				continue
			}
			seen[item.Name] = struct{}{}
			kept.Items = append(kept.Items, &RecipeItem{
				Name:        item.Name,
				Description: item.Description,
				Cost:        item.Cost.merged(),
				Locked:      item.Locked,
			})
		}

		catalog.categories = append(catalog.categories, kept)
		catalog.byName[kept.Name] = kept
	}

	return catalog, problems
}

// Categories returns the categories in declaration order. The slice is a
// copy; the categories are shared by every session and must not be modified.
func (c *RecipeCatalog) Categories() []*RecipeCategory {
	if c == nil {
		return nil
	}
	return slices.Clone(c.categories)
}

// Category looks up a category by name.
func (c *RecipeCatalog) Category(name string) (*RecipeCategory, bool) {
	if c == nil {
		return nil, false
	}
	category, ok := c.byName[name]
	return category, ok
}

// ItemsIn yields the items of category with their costs, in declaration
// order. Unknown categories yield nothing. Gating is left to the caller.
func (c *RecipeCatalog) ItemsIn(category string) iter.Seq2[string, Cost] {
	return func(yield func(string, Cost) bool) {
		entry, ok := c.Category(category)
		if !ok {
			return
		}
		for _, item := range entry.Items {
			if !yield(item.Name, item.Cost) {
				return
			}
		}
	}
}

// Craft spends the cost of item and adds one of it to the ledger. Nothing is
// mutated when it fails.
func (c *RecipeCatalog) Craft(ledger *ResourceLedger, category, item string) error {
	recipe, err := c.lookup(category, item)
	if err != nil {
		return err
	}

	if err := ledger.Spend(recipe.Cost); err != nil {
		return err
	}
	ledger.IncrementOrInsert(recipe.Name, 1)
	return nil
}

func (c *RecipeCatalog) lookup(category, item string) (*RecipeItem, error) {
	entry, ok := c.Category(category)
	if !ok {
		return nil, &NotFoundError{Kind: NotFoundCategory, ID: category, Suggestions: suggest(category, c.categoryNames())}
	}
	recipe, ok := entry.Item(item)
	if !ok {
		names := make([]string, 0, len(entry.Items))
		for _, candidate := range entry.Items {
			names = append(names, candidate.Name)
		}
		return nil, &NotFoundError{Kind: NotFoundItem, ID: item, Suggestions: suggest(item, names)}
	}
	return recipe, nil
}

func (c *RecipeCatalog) categoryNames() []string {
	names := make([]string, 0, len(c.Categories()))
	for _, category := range c.Categories() {
		names = append(names, category.Name)
	}
	return names
}
