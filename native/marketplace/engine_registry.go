package marketplace

// InitializeClient creates the client registry of signer. The signer pays
// the registry's rent.
func (e *Engine) InitializeClient(signer Address) (Address, error) {
	addr := ClientAddress(signer)
	b := e.newBatch()
	reg := &ClientRegistry{Owner: signer}
	if err := b.createRecord(signer, addr, reg.Encode(), RegistrySpace); err != nil {
		return Address{}, err
	}
	if err := b.flush(); err != nil {
		return Address{}, err
	}
	e.emit(NewClientInitializedEvent(addr, signer, e.now()))
	return addr, nil
}

// InitializeContractor creates the contractor registry of signer.
func (e *Engine) InitializeContractor(signer Address) (Address, error) {
	addr := ContractorAddress(signer)
	b := e.newBatch()
	reg := &ContractorRegistry{Owner: signer}
	if err := b.createRecord(signer, addr, reg.Encode(), RegistrySpace); err != nil {
		return Address{}, err
	}
	if err := b.flush(); err != nil {
		return Address{}, err
	}
	e.emit(NewContractorInitializedEvent(addr, signer, e.now()))
	return addr, nil
}
