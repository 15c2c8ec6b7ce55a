package newsletter

import "github.com/bissquit/pnw-deals/internal/domain"

// Match returns the deals relevant to sub, preserving the order of deals.
//
// A deal matches when its business category is one of the subscriber's
// categories, or when the business has a subcategory and it is one of the
// subscriber's subcategories. Subscribers without preferences match nothing.
func Match(sub domain.Subscriber, deals []domain.Deal) []domain.Deal {
	if !sub.HasPreferences() {
		return nil
	}

	categories := toSet(sub.CategoryIDs)
	subcategories := toSet(sub.SubcategoryIDs)

	var matched []domain.Deal
	for _, deal := range deals {
		if deal.Business == nil {
			continue
		}
		if businessMatches(deal.Business, categories, subcategories) {
			matched = append(matched, deal)
		}
	}
	return matched
}

func businessMatches(b *domain.Business, categories, subcategories map[string]struct{}) bool {
	if _, ok := categories[b.CategoryID]; ok {
		return true
	}
	if b.SubcategoryID == nil {
		return false
	}
	_, ok := subcategories[*b.SubcategoryID]
	return ok
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
