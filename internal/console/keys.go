package console

import "github.com/roach88/qsync/internal/ir"

// Query keys. Prefix keys (KeyDoctors, KeyPayouts) are invalidation
// patterns only; nothing is fetched under them directly.
var (
	KeyDashboard = ir.K("dashboard")

	KeyDoctors         = ir.K("doctors")
	KeyPendingDoctors  = ir.K("doctors", "pending")
	KeyApprovedDoctors = ir.K("doctors", "approved")
	KeyAllDoctors      = ir.K("doctors", "all")

	KeyPatients     = ir.K("patients")
	KeySpecialities = ir.K("specialities")
	KeyBanners      = ir.K("banners")
	KeyAdmins       = ir.K("admins")
	KeyFeedbacks    = ir.K("feedbacks")

	KeyPayouts        = ir.K("payouts")
	KeyPendingPayouts = ir.K("payouts", "pending")
)
