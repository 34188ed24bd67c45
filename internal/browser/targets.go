// ABOUTME: Role-to-locator mapping for the gateway login page
// ABOUTME: Built-in target sets per website version, with configured overrides

package browser

import (
	"fmt"
	"log/slog"
	"sort"
)

// Role names a logical element on the login page.
type Role string

const (
	RoleUserName          Role = "USER_NAME"
	RolePassword          Role = "PASSWORD"
	RoleSubmit            Role = "SUBMIT"
	RoleError             Role = "ERROR"
	RoleSuccess           Role = "SUCCESS"
	RoleTwoFA             Role = "TWO_FA"
	RoleTwoFASelect       Role = "TWO_FA_SELECT"
	RoleTwoFANotification Role = "TWO_FA_NOTIFICATION"
	RoleTwoFAInput        Role = "TWO_FA_INPUT"
	RoleIBKeyPromo        Role = "IBKEY_PROMO"
)

// TargetSet maps logical roles to concrete locators for one website version.
type TargetSet map[Role]Locator

// versionTargets holds the locators that differ between website versions.
// Version 1 is the layout served until March 2023, version 2 afterwards.
var versionTargets = map[int]map[Role]Locator{
	1: {
		RoleUserName: MustParse("NAME@@user_name"),
		RoleError:    MustParse("CLASS_NAME@@alert.alert-danger.margin-top-10"),
	},
	2: {
		RoleUserName: MustParse("NAME@@username"),
		RoleError:    MustParse("CLASS_NAME@@xyz-errormessage"),
	},
}

// commonTargets holds the locators shared by all known website versions.
var commonTargets = map[Role]Locator{
	RolePassword:          MustParse("NAME@@password"),
	RoleSubmit:            MustParse("CSS_SELECTOR@@.btn.btn-lg.btn-primary"),
	RoleSuccess:           MustParse("TAG_NAME@@Client login succeeds"),
	RoleTwoFA:             MustParse("ID@@twofactbase"),
	RoleTwoFASelect:       MustParse("ID@@sf_select"),
	RoleTwoFANotification: MustParse("CLASS_NAME@@login-step-notification"),
	RoleTwoFAInput:        MustParse("ID@@chlginput"),
	RoleIBKeyPromo:        MustParse("CLASS_NAME@@ibkey-promo-skip"),
}

// Versions returns the known website versions, ascending.
func Versions() []int {
	versions := make([]int, 0, len(versionTargets))
	for v := range versionTargets {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

// UserNameLocator returns the version-specific username field locator, used
// to probe which website version is being served.
func UserNameLocator(version int) (Locator, bool) {
	vt, ok := versionTargets[version]
	if !ok {
		return Locator{}, false
	}
	return vt[RoleUserName], true
}

// ResolveTargets builds the TargetSet for a detected website version and
// applies configured overrides on top. Override keys must name known roles
// and values must parse as locators; both are checked here so a bad override
// fails at startup rather than mid-login.
func ResolveTargets(version int, overrides map[string]string, logger *slog.Logger) (TargetSet, error) {
	vt, ok := versionTargets[version]
	if !ok {
		return nil, fmt.Errorf("unknown website version %d", version)
	}

	targets := make(TargetSet, len(commonTargets)+len(vt))
	for role, loc := range commonTargets {
		targets[role] = loc
	}
	for role, loc := range vt {
		targets[role] = loc
	}

	for key, value := range overrides {
		role := Role(key)
		builtin, known := targets[role]
		if !known {
			return nil, fmt.Errorf("locator override for unknown role %q", key)
		}
		loc, err := Parse(value)
		if err != nil {
			return nil, fmt.Errorf("locator override for role %q: %w", key, err)
		}
		if loc != builtin {
			logger.Warn("Locator override differs from built-in target",
				"role", role, "override", loc.String(), "builtin", builtin.String())
		}
		targets[role] = loc
	}

	return targets, nil
}
