// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scoring

// Settings is the persisted form of a scoring policy.
type Settings struct {
	PreferInAgeBracket bool `json:"prefer_in_age_bracket" mapstructure:"prefer_in_age_bracket"`
	PreferOrganiser    bool `json:"prefer_organiser" mapstructure:"prefer_organiser"`
	PreferAssociation  bool `json:"prefer_association" mapstructure:"prefer_association"`
	PreferAdmins       bool `json:"prefer_admins" mapstructure:"prefer_admins"`
}

// FromSettings builds the scoring in a fixed order: organiser children,
// association children, admin children, age bracket, motivation.
func FromSettings(st Settings) *Scoring {
	var criteria []Criterion
	if st.PreferOrganiser {
		criteria = append(criteria, PreferOrganiserChildren{})
	}
	if st.PreferAssociation {
		criteria = append(criteria, PreferAssociationChildren{})
	}
	if st.PreferAdmins {
		criteria = append(criteria, PreferAdminChildren{})
	}
	if st.PreferInAgeBracket {
		criteria = append(criteria, PreferInAgeBracket{})
	}
	criteria = append(criteria, PreferMotivated{})
	return New(criteria...)
}

func (s *Scoring) Settings() Settings {
	var st Settings
	for _, c := range s.criteria {
		switch c.Name() {
		case NameInAgeBracket:
			st.PreferInAgeBracket = true
		case NameOrganiser:
			st.PreferOrganiser = true
		case NameAssociation:
			st.PreferAssociation = true
		case NameAdmins:
			st.PreferAdmins = true
		}
	}
	return st
}
