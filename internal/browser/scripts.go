package browser

// 页面内执行的脚本，参数以 JSON 传入

const annotateJS = `(function(hiddenAttr, idAttr) {
	var seq = window.__bwhSeq || 0;
	var all = document.body ? document.body.querySelectorAll('*') : [];
	for (var i = 0; i < all.length; i++) {
		var el = all[i];
		if (!el.hasAttribute(idAttr)) {
			el.setAttribute(idAttr, String(++seq));
		}
		if (el.tagName === 'INPUT' || el.id === 'bwh-status' || el.classList.contains('bwh-marker')) {
			el.removeAttribute(hiddenAttr);
			continue;
		}
		var cs = window.getComputedStyle(el);
		if (cs.display === 'none' || cs.visibility === 'hidden') {
			el.setAttribute(hiddenAttr, '1');
		} else {
			el.removeAttribute(hiddenAttr);
		}
	}
	window.__bwhSeq = seq;
	return seq;
})`

const setValueJS = `(function(sel, value) {
	var el = document.querySelector(sel);
	if (!el) return false;
	if (el.focus) el.focus();
	if (el.tagName === 'INPUT' || el.tagName === 'TEXTAREA') {
		var proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
		var desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
	} else {
		el.textContent = value;
	}
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})`

const selectJS = `(function(sel) {
	var el = document.querySelector(sel);
	if (!el) return false;
	el.scrollIntoView({ block: 'center' });
	if (el.tagName === 'INPUT') {
		if (!el.checked) el.click();
		if (!el.checked) el.checked = true;
	} else {
		el.click();
		if (el.getAttribute('role')) el.setAttribute('aria-checked', 'true');
	}
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})`

const dragJS = `(async function(wordSel, zoneSel) {
	var word = document.querySelector(wordSel);
	var zone = document.querySelector(zoneSel);
	if (!word || !zone) return { found: false, moved: false };

	var before = zone.innerHTML;
	var sleep = function(ms) { return new Promise(function(r) { setTimeout(r, ms); }); };
	var dt = null;
	try {
		dt = new DataTransfer();
		dt.setData('text/plain', (word.textContent || '').trim());
	} catch (e) {}

	var wr = word.getBoundingClientRect();
	var zr = zone.getBoundingClientRect();
	function fire(el, type, r) {
		var init = { clientX: r.left + r.width / 2, clientY: r.top + r.height / 2, bubbles: true, cancelable: true };
		if (type.indexOf('drag') === 0 || type === 'drop') {
			init.dataTransfer = dt;
			el.dispatchEvent(new DragEvent(type, init));
		} else if (type.indexOf('pointer') === 0) {
			el.dispatchEvent(new PointerEvent(type, init));
		} else {
			el.dispatchEvent(new MouseEvent(type, init));
		}
	}

	fire(word, 'pointerdown', wr);
	fire(word, 'mousedown', wr);
	fire(word, 'dragstart', wr);
	await sleep(50);
	fire(zone, 'dragenter', zr);
	fire(zone, 'dragover', zr);
	fire(zone, 'pointermove', zr);
	fire(zone, 'mousemove', zr);
	await sleep(50);
	fire(zone, 'drop', zr);
	fire(word, 'dragend', zr);
	fire(zone, 'pointerup', zr);
	fire(zone, 'mouseup', zr);
	await sleep(100);

	return { found: true, moved: zone.innerHTML !== before };
})`

const relocateJS = `(function(wordSel, zoneSel) {
	var word = document.querySelector(wordSel);
	var zone = document.querySelector(zoneSel);
	if (!word || !zone) return false;
	var clone = word.cloneNode(true);
	clone.removeAttribute('data-bwh-id');
	zone.appendChild(clone);
	word.style.display = 'none';
	zone.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})`

const markerJS = `(function(sel, m) {
	var el = document.querySelector(sel);
	if (!el) return false;
	var next = el.nextElementSibling;
	if (next && next.classList.contains('bwh-marker')) return true;
	var span = document.createElement('span');
	span.className = 'bwh-marker';
	span.title = m.title;
	span.style.cssText = 'display:inline-block;width:' + m.size + 'px;height:' + m.size +
		'px;margin-left:4px;border-radius:50%;background:' + m.color;
	el.insertAdjacentElement('afterend', span);
	return true;
})`

const statusJS = `(function(text, color) {
	var el = document.getElementById('bwh-status');
	if (!el) {
		el = document.createElement('div');
		el.id = 'bwh-status';
		el.style.cssText = 'position:fixed;top:5px;right:5px;color:white;padding:5px;z-index:9999;font-size:12px;border-radius:3px;';
		document.body.appendChild(el);
	}
	el.textContent = 'BW: ' + text;
	el.style.backgroundColor = color;
	return true;
})`

const navHooksJS = `(function(navSel) {
	if (window.__bwhHooked) return false;
	window.__bwhHooked = true;
	window.__bwhNav = 0;
	var bump = function(why) {
		window.__bwhNav++;
		console.debug('BW nav: ' + why);
	};
	var generic = /next|previous|volgende|vorige/i;
	var isNav = function(el) {
		if (!el || !el.matches) return false;
		if (el.matches(navSel)) return true;
		if (el.matches('[role="button"], button')) {
			return generic.test(el.textContent || '') || generic.test(el.getAttribute('aria-label') || '');
		}
		return false;
	};
	var attach = function(el) {
		if (el.__bwhNavHook) return;
		el.__bwhNavHook = true;
		el.addEventListener('click', function() { bump('click'); }, true);
	};
	var scan = function(root) {
		if (isNav(root)) attach(root);
		if (!root.querySelectorAll) return;
		root.querySelectorAll(navSel + ', [role="button"], button').forEach(function(el) {
			if (isNav(el)) attach(el);
		});
	};
	scan(document);
	new MutationObserver(function(mutations) {
		mutations.forEach(function(m) {
			m.addedNodes.forEach(function(n) {
				if (n.nodeType === 1) scan(n);
			});
		});
	}).observe(document.body, { childList: true, subtree: true });
	document.addEventListener('keydown', function(e) {
		if (e.key === 'ArrowRight' || e.key === 'ArrowLeft') bump('key');
	}, true);
	return true;
})`

const navStateJS = `({ hooked: !!window.__bwhHooked, count: window.__bwhNav || 0 })`
