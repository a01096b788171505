// Package storage persists the settlement core's operation journal.
package storage

import "ammCore/internal/amm"

// Journal is the sink ledgers append applied operations to.
type Journal = amm.Journal
