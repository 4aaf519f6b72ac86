package applier

// Mapping describes one replicated clinic table: its key column, the columns
// the bridge is allowed to write, and the timestamp column used for the
// newest-timestamp-wins conflict guard. Table and column names are identical
// on both sides; the mirror schema is created with quoted identifiers so the
// source names survive in Postgres.
type Mapping struct {
	Table     string
	Key       string
	Columns   []string
	UpdatedAt string
}

func (m Mapping) hasColumn(name string) bool {
	for _, col := range m.Columns {
		if col == name {
			return true
		}
	}
	return false
}

type Registry struct {
	byTable map[string]Mapping
	order   []string
}

func NewRegistry(mappings []Mapping) *Registry {
	r := &Registry{
		byTable: make(map[string]Mapping, len(mappings)),
	}
	for _, m := range mappings {
		r.byTable[m.Table] = m
		r.order = append(r.order, m.Table)
	}

	return r
}

func (r *Registry) Lookup(table string) (Mapping, bool) {
	m, ok := r.byTable[table]
	return m, ok
}

// Mappings returns the registered mappings in registration order, which is
// the order the poller scans the mirror tables in.
func (r *Registry) Mappings() []Mapping {
	out := make([]Mapping, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.byTable[t])
	}
	return out
}

// DefaultRegistry covers the clinic tables replicated between the practice
// management database and its mirror.
func DefaultRegistry() *Registry {
	return NewRegistry([]Mapping{
		{
			Table:     "Patients",
			Key:       "PatientID",
			Columns:   []string{"PatientID", "FirstName", "LastName", "Phone", "Email", "DateOfBirth", "Notes", "UpdatedAt"},
			UpdatedAt: "UpdatedAt",
		},
		{
			Table:     "Appointments",
			Key:       "AppointmentID",
			Columns:   []string{"AppointmentID", "PatientID", "AppointmentDate", "AppointmentType", "Present", "Seated", "Dismissed", "Notes", "UpdatedAt"},
			UpdatedAt: "UpdatedAt",
		},
		{
			Table:     "AlignerSets",
			Key:       "AlignerSetID",
			Columns:   []string{"AlignerSetID", "PatientID", "StartDate", "TotalAligners", "CurrentAligner", "WearDays", "Notes", "UpdatedAt"},
			UpdatedAt: "UpdatedAt",
		},
		{
			Table:     "AlignerSteps",
			Key:       "AlignerStepID",
			Columns:   []string{"AlignerStepID", "AlignerSetID", "StepNumber", "DeliveredDate", "Notes", "UpdatedAt"},
			UpdatedAt: "UpdatedAt",
		},
		{
			Table:     "WhatsAppMessages",
			Key:       "MessageID",
			Columns:   []string{"MessageID", "PatientID", "Direction", "Body", "SentAt", "DeliveryStatus", "UpdatedAt"},
			UpdatedAt: "UpdatedAt",
		},
	})
}
