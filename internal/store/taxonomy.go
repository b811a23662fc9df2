package store

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snippet-organizer/internal/apperror"
	"github.com/sakif/snippet-organizer/internal/idgen"
	"github.com/sakif/snippet-organizer/internal/model"
)

const (
	MaxCategoryNameLength = 100
	MaxTagLabelLength     = 50
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ReassignPolicy decides what happens to a deleted category's snippets.
// The zero value uncategorizes them.
type ReassignPolicy struct {
	TargetID string
}

// Uncategorize clears the category of every affected snippet.
func Uncategorize() ReassignPolicy { return ReassignPolicy{} }

// ReassignTo moves every affected snippet into the target category.
func ReassignTo(categoryID string) ReassignPolicy { return ReassignPolicy{TargetID: categoryID} }

// =========================================================================
// CATEGORIES
// =========================================================================

// AddCategory creates a category. An empty color gets the default gray.
func (s *Store) AddCategory(name, color string) (model.Category, error) {
	name, err := cleanCategoryName(name)
	if err != nil {
		return model.Category{}, err
	}
	color, err = cleanColor(color)
	if err != nil {
		return model.Category{}, err
	}

	var created model.Category
	err = s.update(func(tx *transaction) error {
		if err := tx.claimCategoryName(name, ""); err != nil {
			return err
		}
		created = model.Category{
			ID:        tx.store.ids.Allocate(idgen.KindCategory),
			Name:      name,
			Color:     color,
			CreatedAt: tx.now,
			UpdatedAt: tx.now,
		}
		tx.state.categories[created.ID] = created
		tx.state.categoryNames[model.NameKey(name)] = created.ID
		tx.addedCategories[created.ID] = struct{}{}
		return nil
	})
	return created, err
}

// RenameCategory changes a category's name. Renaming to a different case of
// the same name is allowed.
func (s *Store) RenameCategory(id, name string) (model.Category, error) {
	return s.UpdateCategory(id, &name, nil)
}

// RecolorCategory changes a category's color.
func (s *Store) RecolorCategory(id, color string) (model.Category, error) {
	return s.UpdateCategory(id, nil, &color)
}

// UpdateCategory changes the name and/or color in one commit. Nil leaves a
// field unchanged.
func (s *Store) UpdateCategory(id string, name, color *string) (model.Category, error) {
	var cleanName, cleanCol string
	var err error
	if name != nil {
		if cleanName, err = cleanCategoryName(*name); err != nil {
			return model.Category{}, err
		}
	}
	if color != nil {
		if cleanCol, err = cleanColor(*color); err != nil {
			return model.Category{}, err
		}
	}

	var updated model.Category
	err = s.update(func(tx *transaction) error {
		cur, ok := tx.state.categories[id]
		if !ok {
			return apperror.NotFound("category", id)
		}
		if name != nil {
			if err := tx.claimCategoryName(cleanName, id); err != nil {
				return err
			}
			delete(tx.state.categoryNames, model.NameKey(cur.Name))
			tx.state.categoryNames[model.NameKey(cleanName)] = id
			cur.Name = cleanName
		}
		if color != nil {
			cur.Color = cleanCol
		}
		cur.UpdatedAt = tx.now
		tx.state.categories[id] = cur
		updated = cur
		return nil
	})
	return updated, err
}

// DeleteCategory removes a category and, in the same commit, applies policy
// to every snippet filed under it. Snippets are never deleted.
func (s *Store) DeleteCategory(id string, policy ReassignPolicy) error {
	return s.update(func(tx *transaction) error {
		cur, ok := tx.state.categories[id]
		if !ok {
			return apperror.NotFound("category", id)
		}
		if policy.TargetID == id {
			return apperror.ValidationFailed("reassign", "cannot reassign snippets to the category being deleted")
		}
		if policy.TargetID != "" {
			if _, ok := tx.state.categories[policy.TargetID]; !ok {
				return apperror.Reference("category", policy.TargetID)
			}
		}

		members, err := tx.store.idx.FindByCategory(id)
		if err != nil {
			return err
		}
		for _, snippetID := range members {
			sn := tx.state.snippets[snippetID].Clone()
			sn.CategoryID = policy.TargetID
			sn.UpdatedAt = tx.now
			tx.putSnippet(sn)
		}

		delete(tx.state.categories, id)
		delete(tx.state.categoryNames, model.NameKey(cur.Name))
		tx.removedCategories[id] = struct{}{}
		return nil
	})
}

// Category returns one category by id.
func (s *Store) Category(id string) (model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.state.categories[id]
	if !ok {
		return model.Category{}, apperror.NotFound("category", id)
	}
	return c, nil
}

// CategoryByName looks a category up by case-insensitive name.
func (s *Store) CategoryByName(name string) (model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.state.categoryNames[model.NameKey(name)]
	if !ok {
		return model.Category{}, apperror.NotFoundByName("category", "name", name)
	}
	return s.state.categories[id], nil
}

// Categories returns every category sorted by name.
func (s *Store) Categories() []model.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Category, 0, len(s.state.categories))
	for _, c := range s.state.categories {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.Category) int {
		return cmp.Or(cmp.Compare(model.NameKey(a.Name), model.NameKey(b.Name)), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// =========================================================================
// TAGS
// =========================================================================

// AddTag creates a tag. A label already in use fails with ErrValidation.
func (s *Store) AddTag(label string) (model.Tag, error) {
	label, err := cleanTagLabel(label)
	if err != nil {
		return model.Tag{}, err
	}

	var created model.Tag
	err = s.update(func(tx *transaction) error {
		if err := tx.claimTagLabel(label, ""); err != nil {
			return err
		}
		created = tx.insertTag(label)
		return nil
	})
	return created, err
}

// EnsureTag returns the tag with label, creating it if needed. The bool
// reports whether it was created.
func (s *Store) EnsureTag(label string) (model.Tag, bool, error) {
	label, err := cleanTagLabel(label)
	if err != nil {
		return model.Tag{}, false, err
	}

	s.mu.RLock()
	id, exists := s.state.tagLabels[model.NameKey(label)]
	existing := s.state.tags[id]
	s.mu.RUnlock()
	if exists {
		return existing, false, nil
	}

	var created model.Tag
	err = s.update(func(tx *transaction) error {
		if err := tx.claimTagLabel(label, ""); err != nil {
			return err
		}
		created = tx.insertTag(label)
		return nil
	})
	if err != nil {
		return model.Tag{}, false, err
	}
	return created, true, nil
}

// RenameTag changes a tag's label.
func (s *Store) RenameTag(id, label string) (model.Tag, error) {
	label, err := cleanTagLabel(label)
	if err != nil {
		return model.Tag{}, err
	}

	var renamed model.Tag
	err = s.update(func(tx *transaction) error {
		cur, ok := tx.state.tags[id]
		if !ok {
			return apperror.NotFound("tag", id)
		}
		if err := tx.claimTagLabel(label, id); err != nil {
			return err
		}
		delete(tx.state.tagLabels, model.NameKey(cur.Label))
		tx.state.tagLabels[model.NameKey(label)] = id

		cur.Label = label
		tx.state.tags[id] = cur
		renamed = cur
		return nil
	})
	return renamed, err
}

// DeleteTag removes a tag and strips it from every snippet in one commit.
func (s *Store) DeleteTag(id string) error {
	return s.update(func(tx *transaction) error {
		if _, ok := tx.state.tags[id]; !ok {
			return apperror.NotFound("tag", id)
		}

		carriers, err := tx.store.idx.FindByTag(id)
		if err != nil {
			return err
		}
		for _, snippetID := range carriers {
			sn := tx.state.snippets[snippetID].Clone()
			sn.TagIDs = slices.DeleteFunc(sn.TagIDs, func(tagID string) bool { return tagID == id })
			sn.UpdatedAt = tx.now
			tx.putSnippet(sn)
		}

		tx.removeTag(id)
		return nil
	})
}

// Tag returns one tag by id.
func (s *Store) Tag(id string) (model.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.state.tags[id]
	if !ok {
		return model.Tag{}, apperror.NotFound("tag", id)
	}
	return t, nil
}

// TagByLabel looks a tag up by case-insensitive label.
func (s *Store) TagByLabel(label string) (model.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.state.tagLabels[model.NameKey(label)]
	if !ok {
		return model.Tag{}, apperror.NotFoundByName("tag", "label", label)
	}
	return s.state.tags[id], nil
}

// Tags returns every tag sorted by label.
func (s *Store) Tags() []model.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Tag, 0, len(s.state.tags))
	for _, t := range s.state.tags {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b model.Tag) int {
		return cmp.Or(cmp.Compare(model.NameKey(a.Label), model.NameKey(b.Label)), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// TagUsage reports how many snippets carry each tag.
func (s *Store) TagUsage() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usage := make(map[string]int, len(s.state.tags))
	for id := range s.state.tags {
		usage[id] = s.idx.TagRefs(id)
	}
	return usage
}

// CategoryUsage reports how many snippets are filed under each category.
func (s *Store) CategoryUsage() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usage := make(map[string]int, len(s.state.categories))
	for id := range s.state.categories {
		usage[id] = s.idx.CategoryRefs(id)
	}
	return usage
}

// =========================================================================
// HELPERS
// =========================================================================

func (tx *transaction) insertTag(label string) model.Tag {
	t := model.Tag{
		ID:        tx.store.ids.Allocate(idgen.KindTag),
		Label:     label,
		CreatedAt: tx.now,
	}
	tx.state.tags[t.ID] = t
	tx.state.tagLabels[model.NameKey(label)] = t.ID
	tx.addedTags[t.ID] = struct{}{}
	return t
}

// claimCategoryName fails if name is used by a category other than self.
func (tx *transaction) claimCategoryName(name, self string) error {
	if owner, taken := tx.state.categoryNames[model.NameKey(name)]; taken && owner != self {
		return apperror.ValidationFailed("name", fmt.Sprintf("category %q already exists", name))
	}
	return nil
}

func (tx *transaction) claimTagLabel(label, self string) error {
	if owner, taken := tx.state.tagLabels[model.NameKey(label)]; taken && owner != self {
		return apperror.ValidationFailed("label", fmt.Sprintf("tag %q already exists", label))
	}
	return nil
}

func cleanCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("name", "category name is required")
	}
	if !utf8.ValidString(name) {
		return "", apperror.ValidationFailed("name", "category name must be valid UTF-8")
	}
	if len(name) > MaxCategoryNameLength {
		return "", apperror.ValidationFailed("name",
			fmt.Sprintf("category name must be %d characters or less", MaxCategoryNameLength))
	}
	return name, nil
}

func cleanTagLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", apperror.ValidationFailed("label", "tag label is required")
	}
	if !utf8.ValidString(label) {
		return "", apperror.ValidationFailed("label", "tag label must be valid UTF-8")
	}
	if len(label) > MaxTagLabelLength {
		return "", apperror.ValidationFailed("label",
			fmt.Sprintf("tag label must be %d characters or less", MaxTagLabelLength))
	}
	if strings.Contains(label, ",") {
		return "", apperror.ValidationFailed("label", "tag label cannot contain a comma")
	}
	return label, nil
}

func cleanColor(color string) (string, error) {
	color = strings.TrimSpace(color)
	if color == "" {
		return model.DefaultCategoryColor, nil
	}
	if !colorPattern.MatchString(color) {
		return "", apperror.ValidationFailed("color", "color must be a hex value like #1a2b3c")
	}
	return strings.ToLower(color), nil
}
