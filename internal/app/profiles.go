package app

// ListProfiles returns all profile names, sorted.
func (a *App) ListProfiles() ([]string, error) {
	return a.profiles.List()
}

// CreateProfile creates a new empty profile.
func (a *App) CreateProfile(name string) error {
	if err := a.persist(); err != nil {
		return err
	}

	if err := a.profiles.Create(name); err != nil {
		return a.fail(err)
	}
	a.note("created profile %s", name)
	return nil
}

// SwitchProfile makes the named profile active for subsequent invocations.
// The current invocation keeps the profile it was built with.
func (a *App) SwitchProfile(name string) error {
	if err := a.persist(); err != nil {
		return err
	}

	if err := a.profiles.Switch(name); err != nil {
		return a.fail(err)
	}
	a.note("switched to profile %s", name)
	return nil
}

// RemoveProfile deletes a non-active profile and everything under it.
func (a *App) RemoveProfile(name string) error {
	if err := a.persist(); err != nil {
		return err
	}

	if err := a.profiles.Remove(name); err != nil {
		return a.fail(err)
	}
	a.note("removed profile %s", name)
	return nil
}
