package tree

// DeviceSnapshot is the durable shape of the device arena (§6.3):
// generational ids, owner extension id, name, and group set, plus the
// arena's generation counter so restored handles keep their generation.
type DeviceSnapshot struct {
	Generation uint32
	Devices    []PersistedDevice
}

// PersistedDevice is one device's durable record.
type PersistedDevice struct {
	ID       DeviceID
	Owner    ExtensionID
	Name     string
	Groups   []GroupID
	Entities []PersistedEntity
}

// PersistedEntity is one entity's durable record. Component values are
// ephemeral (§2) and are not persisted; only identity survives a restart.
type PersistedEntity struct {
	Name string
}

// GroupSnapshot is the durable shape of the group arena.
type GroupSnapshot struct {
	Generation uint32
	Groups     []PersistedGroup
}

// PersistedGroup is one group's durable record.
type PersistedGroup struct {
	ID      GroupID
	Name    string
	Devices []DeviceID
}

// Snapshot renders the current device arena to its durable shape.
func (t *Tree) Snapshot() DeviceSnapshot {
	snap := DeviceSnapshot{Generation: t.devices.Generation()}
	t.IterDevices(func(id DeviceID, d *Device) {
		pd := PersistedDevice{ID: id, Owner: d.Owner, Name: d.Name}
		for gid := range d.Groups {
			pd.Groups = append(pd.Groups, gid)
		}
		for _, e := range d.Entities {
			pd.Entities = append(pd.Entities, PersistedEntity{Name: e.Name})
		}
		snap.Devices = append(snap.Devices, pd)
	})
	return snap
}

// GroupSnapshotNow renders the current group arena to its durable shape.
func (t *Tree) GroupSnapshotNow() GroupSnapshot {
	snap := GroupSnapshot{Generation: t.groups.Generation()}
	t.IterGroups(func(id GroupID, g *Group) {
		pg := PersistedGroup{ID: id, Name: g.Name}
		for did := range g.Devices {
			pg.Devices = append(pg.Devices, did)
		}
		snap.Groups = append(snap.Groups, pg)
	})
	return snap
}

// Restore repopulates the tree from persisted snapshots using insert_at,
// so that restored handles retain their original (index, generation).
// An arena insert_at collision is corrupt persisted state (§7) and is
// returned unwrapped so the caller can refuse to serve.
func (t *Tree) Restore(devs DeviceSnapshot, groups GroupSnapshot) error {
	// Seed the arena-wide counters before inserting anything, so that once
	// restore finishes, the next Insert/Remove on either arena mints a
	// generation no earlier than the persisted state already used: a stale
	// pre-restart handle never becomes valid again by chance.
	t.devices.SeedGeneration(devs.Generation)
	t.groups.SeedGeneration(groups.Generation)

	for _, pg := range groups.Groups {
		g := &Group{Name: pg.Name, Devices: make(map[DeviceID]struct{}, len(pg.Devices))}
		for _, did := range pg.Devices {
			g.Devices[did] = struct{}{}
		}
		if err := t.groups.InsertAt(idOf(pg.ID), g); err != nil {
			return err
		}
	}

	for _, pd := range devs.Devices {
		d := &Device{
			Name:         pd.Name,
			Owner:        pd.Owner,
			Groups:       make(map[GroupID]struct{}, len(pd.Groups)),
			entityByName: make(map[string]EntityIndex, len(pd.Entities)),
		}
		for _, gid := range pd.Groups {
			d.Groups[gid] = struct{}{}
		}
		for i, pe := range pd.Entities {
			ent := newEntity(pe.Name)
			d.Entities = append(d.Entities, ent)
			d.entityByName[pe.Name] = EntityIndex(i)
		}
		if err := t.devices.InsertAt(idOf(pd.ID), d); err != nil {
			return err
		}
	}
	return nil
}
