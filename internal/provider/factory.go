package provider

// BuildFactory wires the three concrete providers into a Factory keyed by
// the provider ids the catalog seeds (sora_hk, openai, aihubmix). limiters
// may be nil, in which case the providers issue requests unthrottled.
func BuildFactory(sora SoraHKConfig, openai OpenAIConfig, aihubmix AIHubMixConfig, limiters *Limiters) *Factory {
	f := NewFactory()
	f.Register("sora_hk", func() Client { return NewSoraHKProvider(sora, limiters) })
	f.Register("openai", func() Client { return NewOpenAIProvider(openai, limiters) })
	f.Register("aihubmix", func() Client { return NewAIHubMixProvider(aihubmix, limiters) })
	return f
}
