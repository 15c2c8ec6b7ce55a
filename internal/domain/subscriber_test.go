package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanType(t *testing.T) {
	tests := []struct {
		plan     PlanType
		valid    bool
		business bool
	}{
		{PlanTypeNewsletter, true, false},
		{PlanTypeBusinessBasic, true, true},
		{PlanTypeBusinessPremium, true, true},
		{"enterprise", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.plan.Valid())
			assert.Equal(t, tt.business, tt.plan.IsBusiness())
		})
	}
}

func TestSubscriber_HasPreferences(t *testing.T) {
	assert.False(t, Subscriber{}.HasPreferences())
	assert.True(t, Subscriber{CategoryIDs: []string{"coffee"}}.HasPreferences())
	assert.True(t, Subscriber{SubcategoryIDs: []string{"breakfast"}}.HasPreferences())
}
