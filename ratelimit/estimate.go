package ratelimit

// EstimateTokens approximates the token need of an input before execution:
// one token per four characters plus a fixed buffer for prompt overhead.
func (g *Governor) EstimateTokens(input string) float64 {
	return float64(len(input))/4 + float64(g.cfg.TokenBuffer)
}

// EstimateCost converts a token count to monetary cost using the per-model
// rate table, falling back to the configured default rate: tokens/1000 × rate.
func (g *Governor) EstimateCost(tokens float64, model string) float64 {
	rate, ok := g.cfg.ModelRates[model]
	if !ok {
		rate = g.cfg.FallbackRate
	}
	return tokens / 1000 * rate
}
