package ceqanet

import "leadscout-backend/lib/telemetry"

var tracer = telemetry.Tracer("leadscout.lib.scrapers.ceqanet")
