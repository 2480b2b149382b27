package actions

var builtins = map[Type]Factory{
	TypeNoop:          noopFactory,
	TypeStatic:        staticFactory,
	TypeThrow:         throwFactory,
	TypeLog:           logFactory,
	TypeCondition:     conditionFactory,
	TypeMatch:         matchFactory,
	TypeEach:          eachFactory,
	TypeEvent:         eventFactory,
	TypeFlowNext:      flowFactory(TypeFlowNext),
	TypeFlowBack:      flowFactory(TypeFlowBack),
	TypeFlowSkip:      flowFactory(TypeFlowSkip),
	TypeFlowFinish:    flowFactory(TypeFlowFinish),
	TypeFlowCancel:    flowFactory(TypeFlowCancel),
	TypeFlowTo:        flowToFactory,
	TypeMessage:       messageFactory,
	TypeEmail:         emailFactory,
	TypeNotify:        notifyFactory,
	TypeDownload:      downloadFactory,
	TypeRequest:       requestFactory,
	TypeLink:          linkFactory,
	TypeLinkBack:      linkStepFactory(TypeLinkBack, NavigateBack),
	TypeLinkNext:      linkStepFactory(TypeLinkNext, NavigateNext),
	TypeStorageRead:   storageReadFactory,
	TypeStorageWrite:  storageWriteFactory(TypeStorageWrite, false),
	TypeStorageAppend: storageWriteFactory(TypeStorageAppend, true),
	TypeStorageDelete: storageDeleteFactory,
	TypeStorageClear:  storageClearFactory,
}

// noFields rejects definitions that carry fields for an action taking none.
type noFields struct{}
