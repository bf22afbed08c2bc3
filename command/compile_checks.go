package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ReplayDeliveryMessage] = (*ReplayDeliveryCommand)(nil)
	_ gocmd.Commander[PruneAuditMessage]     = (*PruneAuditCommand)(nil)
	_ gocmd.Commander[PurgeExpiredMessage]   = (*PurgeExpiredCommand)(nil)
)
